package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/smallbiznis/toolhub/internal/functions"
	"go.uber.org/zap"
)

type functionQueryRequest struct {
	Query string `json:"query"`
}

type functionInsightsRequest struct {
	Category string `json:"category"`
}

// registerFunctionRoutes mounts the browser-callable functions. They answer
// cross-origin requests and report failures as {"error": "..."}.
func (s *Server) registerFunctionRoutes() {
	fn := s.engine.Group("/functions/v1", corsMiddleware(s.cfg.CORSOrigins))
	fn.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	fn.POST("/"+functions.NameAutocomplete, s.rateLimitFunction(functions.NameAutocomplete), s.Autocomplete)
	fn.POST("/"+functions.NameChatWithAI, s.rateLimitFunction(functions.NameChatWithAI), s.ChatWithAI)
	fn.POST("/"+functions.NameInsights, s.rateLimitFunction(functions.NameInsights), s.GenerateInsights)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		MaxAge:         300,
	})

	return func(c *gin.Context) {
		passed := false
		handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			// preflight answered
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) rateLimitFunction(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		result, err := s.limiter.Allow(ctx, name, c.ClientIP())
		if err != nil {
			// fail open
			s.log.Warn("rate limit check failed", zap.String("function", name), zap.Error(err))
			c.Next()
			return
		}
		if result.Allowed {
			c.Next()
			return
		}

		s.obsMetrics.RecordRateLimitDenied(ctx, name)
		if result.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
		}
		s.functionError(c, name, http.StatusTooManyRequests, "rate limit exceeded")
	}
}

func (s *Server) Autocomplete(c *gin.Context) {
	var req functionQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.functionError(c, functions.NameAutocomplete, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.functions.Autocomplete(c.Request.Context(), req.Query)
	if err != nil {
		s.functionFailure(c, functions.NameAutocomplete, err)
		return
	}
	s.functionOK(c, functions.NameAutocomplete, out)
}

func (s *Server) ChatWithAI(c *gin.Context) {
	var req functionQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.functionError(c, functions.NameChatWithAI, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.functions.ChatWithAI(c.Request.Context(), req.Query)
	if err != nil {
		s.functionFailure(c, functions.NameChatWithAI, err)
		return
	}
	s.functionOK(c, functions.NameChatWithAI, out)
}

func (s *Server) GenerateInsights(c *gin.Context) {
	var req functionInsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.functionError(c, functions.NameInsights, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.functions.GenerateInsights(c.Request.Context(), req.Category)
	if err != nil {
		s.functionFailure(c, functions.NameInsights, err)
		return
	}
	s.functionOK(c, functions.NameInsights, out)
}

func (s *Server) functionOK(c *gin.Context, name string, body any) {
	s.obsMetrics.RecordFunctionCall(c.Request.Context(), name, http.StatusOK)
	c.JSON(http.StatusOK, body)
}

func (s *Server) functionFailure(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, functions.ErrQueryRequired),
		errors.Is(err, functions.ErrQueryTooLong),
		errors.Is(err, functions.ErrCategoryRequired):
		s.functionError(c, name, http.StatusBadRequest, err.Error())
	case errors.Is(err, functions.ErrUnavailable):
		s.functionError(c, name, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("function failed", zap.String("function", name), zap.Error(err))
		s.functionError(c, name, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) functionError(c *gin.Context, name string, status int, message string) {
	s.obsMetrics.RecordFunctionCall(c.Request.Context(), name, status)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
