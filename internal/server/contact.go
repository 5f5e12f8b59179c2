package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/toolhub/internal/contact"
)

func (s *Server) SubmitContact(c *gin.Context) {
	var req contact.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	msg, err := s.contactSvc.Submit(c.Request.Context(), optionalUserID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": msg.ID.String(), "created_at": msg.CreatedAt})
}
