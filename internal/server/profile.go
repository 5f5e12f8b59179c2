package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
)

func (s *Server) GetProfile(c *gin.Context) {
	userID, _ := currentUserID(c)

	profile, err := s.profileSvc.Resolve(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if profile == nil {
		AbortWithError(c, profiledomain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) UpdateProfile(c *gin.Context) {
	userID, _ := currentUserID(c)

	var req profiledomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.profileSvc.Update(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
