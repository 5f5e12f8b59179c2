package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
)

// Searcher is the slice of the catalog the chat and function endpoints use.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]*Tool, error)
}

type Service interface {
	Searcher
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, idOrSlug string) (*Tool, error)
	Categories(ctx context.Context) ([]Category, error)
	RecordView(ctx context.Context, id snowflake.ID) error
	Submit(ctx context.Context, submittedBy *snowflake.ID, req SubmitRequest) (*Tool, error)
	Approve(ctx context.Context, id snowflake.ID) (*Tool, error)
	ListPending(ctx context.Context, page pagination.Pagination) (*ListResponse, error)
	// Seed inserts tools keyed by slug and skips slugs that already exist.
	Seed(ctx context.Context, tools []*Tool) (int, error)
}
