package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/authorization"
	"github.com/smallbiznis/toolhub/internal/navigation"
	obscontext "github.com/smallbiznis/toolhub/internal/observability/context"
)

const contextSessionKey = "session"

// Authenticate attaches the caller's session when there is one. A bearer
// access token wins over the refresh cookie. A bad bearer token is an error;
// a stale cookie just leaves the request anonymous.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if bearer, ok := s.sessions.ReadBearer(c); ok {
			claims, err := s.authsvc.VerifyAccessToken(ctx, bearer)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			s.setSession(c, &authdomain.SessionView{
				SessionID:   claims.SessionID,
				UserID:      claims.UserID,
				Email:       claims.Email,
				AccessToken: bearer,
				ExpiresAt:   claims.ExpiresAt,
			})
			c.Next()
			return
		}

		if token, ok := s.sessions.ReadToken(c); ok {
			if snapshot := s.stores.Load(ctx, token).Snapshot(); snapshot.Session != nil {
				s.setSession(c, snapshot.Session)
			}
		}
		c.Next()
	}
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentSession(c) == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), authorization.UserActor(userID), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// pageState feeds the navigation guard from the cookie's session store.
func (s *Server) pageState(c *gin.Context) navigation.State {
	token, _ := s.sessions.ReadToken(c)
	return s.stores.Load(c.Request.Context(), token).Snapshot().Guard(c.Request.URL.Path)
}

func (s *Server) setSession(c *gin.Context, view *authdomain.SessionView) {
	c.Set(contextSessionKey, view)
	ctx := obscontext.WithUserID(c.Request.Context(), view.UserID.String())
	ctx = obscontext.WithSessionID(ctx, view.SessionID.String())
	c.Request = c.Request.WithContext(ctx)
}

func currentSession(c *gin.Context) *authdomain.SessionView {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return nil
	}
	view, _ := value.(*authdomain.SessionView)
	return view
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	view := currentSession(c)
	if view == nil {
		return 0, false
	}
	return view.UserID, true
}

// optionalUserID is the caller's id for rows that record an optional author.
func optionalUserID(c *gin.Context) *snowflake.ID {
	id, ok := currentUserID(c)
	if !ok {
		return nil
	}
	return &id
}
