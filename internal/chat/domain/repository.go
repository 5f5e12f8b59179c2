package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	// CreateConversation stores the conversation and its opening message
	// in one transaction.
	CreateConversation(ctx context.Context, conv *Conversation, first *Message) error
	FindConversation(ctx context.Context, id snowflake.ID) (*Conversation, error)
	CreateMessage(ctx context.Context, msg *Message) error
	// ListMessages orders by created_at then id. limit <= 0 means all.
	ListMessages(ctx context.Context, conversationID snowflake.ID, limit int) ([]*Message, error)
	// ClaimAutoReply sets auto_replied_at only if it is still null and
	// reports whether this caller won.
	ClaimAutoReply(ctx context.Context, conversationID snowflake.ID, at time.Time) (bool, error)
	ReleaseAutoReply(ctx context.Context, conversationID snowflake.ID) error
}
