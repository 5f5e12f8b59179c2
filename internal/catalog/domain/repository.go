package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, tool *Tool) error
	FindByID(ctx context.Context, id snowflake.ID) (*Tool, error)
	FindBySlug(ctx context.Context, slug string) (*Tool, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*Tool, error)
	// Search matches approved tools by full text on postgres and by
	// substring elsewhere.
	Search(ctx context.Context, query string, limit int) ([]*Tool, error)
	Categories(ctx context.Context) ([]Category, error)
	IncrementViews(ctx context.Context, id snowflake.ID) error
	Approve(ctx context.Context, id snowflake.ID, at time.Time) error
}
