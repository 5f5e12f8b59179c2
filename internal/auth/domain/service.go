package domain

import (
	"context"
	"time"
)

type Service interface {
	SignUp(ctx context.Context, req SignUpRequest) (*SessionView, error)
	SignIn(ctx context.Context, req SignInRequest) (*SessionView, error)
	SignOut(ctx context.Context, refreshToken string) error
	GetSession(ctx context.Context, refreshToken string) (*SessionView, error)
	Refresh(ctx context.Context, refreshToken string) (*SessionView, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (*Claims, error)
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

type SignUpRequest struct {
	Email      string
	Password   string
	RedirectTo string
	UserAgent  string
	IPAddress  string
}

type SignInRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}
