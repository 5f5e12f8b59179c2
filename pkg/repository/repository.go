// Package repository is a generic gorm store for tables that need nothing
// beyond filtered reads and inserts.
package repository

import (
	"context"

	"github.com/smallbiznis/toolhub/pkg/db/option"
)

// Repository reads and writes rows of T. Zero-valued fields of a filter are
// ignored, as with gorm struct conditions.
type Repository[T any] interface {
	Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, row *T) error
	Count(ctx context.Context, filter *T) (int64, error)
}
