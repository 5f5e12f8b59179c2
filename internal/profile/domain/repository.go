package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Profile, error)
	// Upsert inserts or replaces the row keyed by id.
	Upsert(ctx context.Context, profile *Profile) error
	Update(ctx context.Context, id snowflake.ID, fields map[string]any) error
}
