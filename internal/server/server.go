package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/auth/session"
	"github.com/smallbiznis/toolhub/internal/authorization"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	chatdomain "github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/contact"
	"github.com/smallbiznis/toolhub/internal/functions"
	"github.com/smallbiznis/toolhub/internal/navigation"
	"github.com/smallbiznis/toolhub/internal/observability"
	obsmiddleware "github.com/smallbiznis/toolhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/toolhub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/toolhub/internal/observability/tracing"
	"github.com/smallbiznis/toolhub/internal/onboarding"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"github.com/smallbiznis/toolhub/internal/ratelimit"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"github.com/smallbiznis/toolhub/internal/sessionstore"
	"github.com/smallbiznis/toolhub/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const publicDir = "./public"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     []string{"/api/tools/stream", "/auth/state/stream"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	authsvc    authdomain.Service
	sessions   *session.Manager
	stores     *sessionstore.Registry
	authzSvc   authorization.Service
	profileSvc profiledomain.Service
	onboarding *onboarding.Sequencer
	catalogSvc catalogdomain.Service
	chatSvc    chatdomain.Service
	hub        *realtime.Hub
	contactSvc *contact.Service
	functions  *functions.Service
	limiter    *ratelimit.FunctionsLimiter
	obsMetrics *obsmetrics.Metrics
	uploader   storage.Uploader
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Authsvc    authdomain.Service
	Sessions   *session.Manager
	Stores     *sessionstore.Registry
	AuthzSvc   authorization.Service
	ProfileSvc profiledomain.Service
	Onboarding *onboarding.Sequencer
	CatalogSvc catalogdomain.Service
	ChatSvc    chatdomain.Service
	Hub        *realtime.Hub
	ContactSvc *contact.Service
	Functions  *functions.Service
	Limiter    *ratelimit.FunctionsLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
	Uploader   storage.Uploader            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		authsvc:    p.Authsvc,
		sessions:   p.Sessions,
		stores:     p.Stores,
		authzSvc:   p.AuthzSvc,
		profileSvc: p.ProfileSvc,
		onboarding: p.Onboarding,
		catalogSvc: p.CatalogSvc,
		chatSvc:    p.ChatSvc,
		hub:        p.Hub,
		contactSvc: p.ContactSvc,
		functions:  p.Functions,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
		uploader:   p.Uploader,
	}
	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.registerAuthRoutes()
	s.registerAPIRoutes()
	s.registerFunctionRoutes()
	s.registerAdminRoutes()
	s.registerUploads()
	s.registerUIRoutes()
	s.registerFallback()
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.SignUp)
	auth.POST("/signin", s.SignIn)
	auth.POST("/signout", s.SignOut)
	auth.POST("/refresh", s.Refresh)
	auth.GET("/session", s.Session)
	auth.GET("/state", s.AuthState)
	auth.GET("/state/stream", s.StreamAuthState)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.Authenticate())

	// -------- Catalog --------
	api.GET("/tools", s.ListTools)
	api.GET("/tools/stream", s.StreamTools)
	api.GET("/tools/:idOrSlug", s.GetTool)
	api.POST("/tools", s.SubmitTool)
	api.GET("/categories", s.ListCategories)
	api.GET("/categories/:category/tools", s.ListCategoryTools)
	api.GET("/search", s.SearchTools)

	// -------- Profile & onboarding --------
	api.GET("/profile", s.AuthRequired(), s.GetProfile)
	api.PUT("/profile", s.AuthRequired(), s.UpdateProfile)
	api.POST("/onboarding", s.RunOnboarding)

	// -------- Chat --------
	api.POST("/conversations", s.CreateConversation)
	chat := api.Group("/chat/:conversationId")
	{
		chat.GET("/messages", s.ListMessages)
		chat.POST("/messages", s.PostMessage)
		chat.GET("/stream", s.StreamChat)
		chat.GET("/ws", s.ChatWebSocket)
	}

	api.POST("/contact", s.SubmitContact)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.Authenticate(), s.AuthRequired())

	admin.GET("/tools/pending", s.authorizeAction(authorization.ObjectTool, authorization.ActionToolViewPending), s.ListPendingTools)
	admin.POST("/tools/:id/approve", s.authorizeAction(authorization.ObjectTool, authorization.ActionToolApprove), s.ApproveTool)
	admin.GET("/contact-messages", s.authorizeAction(authorization.ObjectContact, authorization.ActionContactView), s.ListContactMessages)
}

// registerUploads serves locally stored avatars under their public base URL.
func (s *Server) registerUploads() {
	local, ok := s.uploader.(*storage.Local)
	base := s.cfg.Storage.PublicBaseURL
	if !ok || !strings.HasPrefix(base, "/") || base == "/" {
		return
	}
	s.engine.Static(base, local.Root())
}

func (s *Server) registerUIRoutes() {
	r := s.engine.Group("/")

	// ---- pages that need a session ----
	guarded := navigation.Guard(s.pageState, navigation.Decide)
	r.GET("/auth", guarded, serveIndex)
	r.GET("/onboarding", guarded, serveIndex)
	r.GET("/chat/:conversationId", guarded, serveIndex)
	r.GET("/standalone-chat", guarded, serveIndex)

	// ---- public pages, gated only for signed-in visitors ----
	public := navigation.Guard(s.pageState, navigation.DecidePublic)
	for _, path := range []string{
		"/", "/popular", "/trending", "/new", "/submit", "/contact",
		"/terms", "/privacy", "/gdpr", "/tool/:toolId", "/category/:category",
	} {
		r.GET(path, public, serveIndex)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		// static assets (vite)
		if fileExists(publicDir, c.Request.URL.Path) {
			c.File(publicDir + c.Request.URL.Path)
			return
		}

		// SPA fallback
		c.File(publicDir + "/index.html")
	})
}

func serveIndex(c *gin.Context) {
	c.File(publicDir + "/index.html")
}

func fileExists(dir, reqPath string) bool {
	clean := filepath.Clean(reqPath)

	// prevent path traversal
	if clean == "." || clean == "/" || clean == ".." {
		return false
	}

	fullPath := filepath.Join(dir, clean)

	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
