package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	authservice "github.com/smallbiznis/toolhub/internal/auth/service"
	"github.com/smallbiznis/toolhub/internal/navigation"
	"github.com/smallbiznis/toolhub/internal/sessionstore"
	"go.uber.org/zap"
)

type SignUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirect_to"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authStateResponse struct {
	State    sessionstore.State  `json:"state"`
	Decision navigation.Decision `json:"decision"`
}

// SignUp validates the credentials before the auth service sees them, so a
// short password never costs a round trip.
func (s *Server) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email, err := authservice.ValidateCredentials(req.Email, req.Password)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.authsvc.SignUp(c.Request.Context(), authdomain.SignUpRequest{
		Email:      email,
		Password:   req.Password,
		RedirectTo: strings.TrimSpace(req.RedirectTo),
		UserAgent:  c.Request.UserAgent(),
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.startSession(c, view)
	c.JSON(http.StatusCreated, view)
}

func (s *Server) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.authsvc.SignIn(c.Request.Context(), authdomain.SignInRequest{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.startSession(c, view)
	c.JSON(http.StatusOK, view)
}

func (s *Server) SignOut(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.SignOut(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}

	s.stores.Forget(token)
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

// Refresh rotates the refresh token and moves the session store with it.
func (s *Server) Refresh(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.authsvc.Refresh(c.Request.Context(), token)
	if err != nil {
		if authdomain.Classify(err).ForceReauth {
			s.stores.Forget(token)
			s.sessions.Clear(c)
		}
		AbortWithError(c, err)
		return
	}

	s.stores.Rekey(token, view.RefreshToken)
	s.sessions.Set(c, view.RefreshToken, view.RefreshExpiresAt)
	c.JSON(http.StatusOK, view)
}

func (s *Server) Session(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.authsvc.GetSession(c.Request.Context(), token)
	if err != nil {
		if authdomain.Classify(err).ForceReauth {
			s.sessions.Clear(c)
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// AuthState is the SPA's view of the session store plus where the guard
// would send it for ?path=.
func (s *Server) AuthState(c *gin.Context) {
	token, _ := s.sessions.ReadToken(c)
	snapshot := s.stores.Load(c.Request.Context(), token).Snapshot()
	c.JSON(http.StatusOK, authStateResponse{
		State:    snapshot,
		Decision: navigation.Decide(snapshot.Guard(c.DefaultQuery("path", navigation.PathHome))),
	})
}

func (s *Server) StreamAuthState(c *gin.Context) {
	token, _ := s.sessions.ReadToken(c)
	store := s.stores.Load(c.Request.Context(), token)
	path := c.DefaultQuery("path", navigation.PathHome)

	updates, cancel := store.Subscribe()
	defer cancel()

	stream, ok := openEventStream(c)
	if !ok {
		return
	}

	send := func(state sessionstore.State) error {
		return stream.send("state", authStateResponse{
			State:    state,
			Decision: navigation.Decide(state.Guard(path)),
		})
	}
	if err := send(store.Snapshot()); err != nil {
		return
	}
	pump(c.Request.Context(), stream, updates, send)
}

// startSession sets the refresh cookie and syncs the caller's roles.
func (s *Server) startSession(c *gin.Context, view *authdomain.SessionView) {
	s.sessions.Set(c, view.RefreshToken, view.RefreshExpiresAt)

	ctx := context.WithoutCancel(c.Request.Context())
	if err := s.authzSvc.SyncUserRoles(ctx, view.UserID, view.Email); err != nil {
		s.log.Warn("sync user roles failed", zap.String("user_id", view.UserID.String()), zap.Error(err))
	}
}
