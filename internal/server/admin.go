package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
)

const defaultContactLimit = 50

func (s *Server) ListPendingTools(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.ListPending(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ApproveTool(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid tool id"))
		return
	}

	tool, err := s.catalogSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool)
}

func (s *Server) ListContactMessages(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), defaultContactLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive number"))
		return
	}

	messages, err := s.contactSvc.List(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
