package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	// Authorize returns ErrForbidden when actor may not perform action on
	// object. Actors are "system" or "user:<id>".
	Authorize(ctx context.Context, actor string, object string, action string) error
	// SyncUserRoles grants or revokes the admin role from the configured
	// admin emails.
	SyncUserRoles(ctx context.Context, userID snowflake.ID, email string) error
	IsAdmin(ctx context.Context, userID snowflake.ID) (bool, error)
}
