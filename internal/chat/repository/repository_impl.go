package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/chat/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) CreateConversation(ctx context.Context, conv *domain.Conversation, first *domain.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		return tx.Create(first).Error
	})
}

func (r *repo) FindConversation(ctx context.Context, id snowflake.ID) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *repo) CreateMessage(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *repo) ListMessages(ctx context.Context, conversationID snowflake.ID, limit int) ([]*domain.Message, error) {
	stmt := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	var items []*domain.Message
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ClaimAutoReply(ctx context.Context, conversationID snowflake.ID, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND auto_replied_at IS NULL", conversationID).
		Update("auto_replied_at", at)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) ReleaseAutoReply(ctx context.Context, conversationID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Update("auto_replied_at", nil).Error
}
