package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

func (s *Server) ListTools(c *gin.Context) {
	s.listTools(c, strings.TrimSpace(c.Query("category")), catalogdomain.ListPopular)
}

func (s *Server) ListCategoryTools(c *gin.Context) {
	s.listTools(c, strings.TrimSpace(c.Param("category")), catalogdomain.ListNew)
}

func (s *Server) listTools(c *gin.Context, category string, defaultKind catalogdomain.ListKind) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	kind := catalogdomain.ListKind(strings.ToLower(strings.TrimSpace(c.Query("kind"))))
	if kind == "" {
		kind = defaultKind
	}

	resp, err := s.catalogSvc.List(c.Request.Context(), catalogdomain.ListRequest{
		Kind:       kind,
		Category:   category,
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTool resolves an id or a slug and counts the view.
func (s *Server) GetTool(c *gin.Context) {
	ctx := c.Request.Context()
	tool, err := s.catalogSvc.Get(ctx, c.Param("idOrSlug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if tool.IsApproved {
		if err := s.catalogSvc.RecordView(ctx, tool.ID); err != nil {
			s.log.Warn("record tool view failed", zap.String("tool_id", tool.ID.String()), zap.Error(err))
		} else {
			tool.Views++
		}
	}
	c.JSON(http.StatusOK, tool)
}

func (s *Server) ListCategories(c *gin.Context) {
	categories, err := s.catalogSvc.Categories(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) SearchTools(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), defaultSearchLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive number"))
		return
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	tools, err := s.catalogSvc.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tools == nil {
		tools = []*catalogdomain.Tool{}
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

func (s *Server) SubmitTool(c *gin.Context) {
	var req catalogdomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tool, err := s.catalogSvc.Submit(c.Request.Context(), optionalUserID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tool)
}

// StreamTools pushes tools as they become visible: approved inserts and
// approvals of pending submissions.
func (s *Server) StreamTools(c *gin.Context) {
	sub, err := s.hub.Subscribe(realtime.TableTools)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer sub.Close()

	stream, ok := openEventStream(c)
	if !ok {
		return
	}

	pump(c.Request.Context(), stream, sub.Events(), func(change realtime.Change) error {
		if !becameVisible(change) {
			return nil
		}
		return stream.send("tool", change.Record)
	})
}

func becameVisible(change realtime.Change) bool {
	var row, old struct {
		IsApproved bool `json:"is_approved"`
	}
	if err := json.Unmarshal(change.Record, &row); err != nil || !row.IsApproved {
		return false
	}
	switch change.Type {
	case realtime.ChangeInsert:
		return true
	case realtime.ChangeUpdate:
		if len(change.OldRecord) == 0 {
			return true
		}
		return json.Unmarshal(change.OldRecord, &old) == nil && !old.IsApproved
	default:
		return false
	}
}
