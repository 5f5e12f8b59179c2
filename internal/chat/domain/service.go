package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/realtime"
)

type Service interface {
	CreateConversation(ctx context.Context, userID *snowflake.ID, query string) (*Conversation, error)
	GetConversation(ctx context.Context, id snowflake.ID) (*Conversation, error)
	Send(ctx context.Context, conversationID snowflake.ID, content string, role Role) (*Message, error)
	ListMessages(ctx context.Context, conversationID snowflake.ID) ([]*Message, error)
	// Subscribe delivers every message inserted into the conversation,
	// whoever wrote it. Close the subscription on teardown.
	Subscribe(ctx context.Context, conversationID snowflake.ID) (*realtime.Subscription, error)
	// MaybeAutoReply answers the opening user message once. It returns the
	// reply, or nil when the conversation does not qualify or another
	// writer already claimed it.
	MaybeAutoReply(ctx context.Context, conversationID snowflake.ID) (*Message, error)
	// Recommend searches the catalog for query and writes a short answer.
	Recommend(ctx context.Context, query string) (*Recommendation, error)
}
