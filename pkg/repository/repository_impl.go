package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/toolhub/pkg/db/option"
	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error) {
	rows := make([]*T, 0)
	if err := s.scope(ctx, filter, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *store[T]) FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error) {
	row := new(T)
	err := s.scope(ctx, filter, opts).Take(row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return row, nil
}

func (s *store[T]) Create(ctx context.Context, row *T) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *store[T]) Count(ctx context.Context, filter *T) (int64, error) {
	var n int64
	err := s.scope(ctx, filter, nil).Model(new(T)).Count(&n).Error
	return n, err
}

func (s *store[T]) scope(ctx context.Context, filter *T, opts []option.QueryOption) *gorm.DB {
	tx := s.db.WithContext(ctx)
	if filter != nil {
		tx = tx.Where(filter)
	}
	for _, opt := range opts {
		tx = opt.Apply(tx)
	}
	return tx
}
