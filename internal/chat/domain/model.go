package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/chat/toolblock"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// MaxContentLength bounds a single message in bytes.
const MaxContentLength = 8000

type Conversation struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	ThreadID      string        `gorm:"type:text;not null;uniqueIndex" json:"thread_id"`
	UserID        *snowflake.ID `gorm:"index" json:"user_id,omitempty"`
	Query         string        `gorm:"type:text" json:"query"`
	AutoRepliedAt *time.Time    `json:"auto_replied_at,omitempty"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
}

func (Conversation) TableName() string { return "chat_conversations" }

type Message struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ConversationID snowflake.ID `gorm:"not null;index:idx_chat_messages_order,priority:1" json:"conversation_id"`
	Content        string       `gorm:"type:text;not null" json:"content"`
	Role           Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt      time.Time    `gorm:"not null;index:idx_chat_messages_order,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Recommendation is a prose answer plus the tools it refers to.
type Recommendation struct {
	Message string           `json:"message"`
	Tools   []toolblock.Tool `json:"tools"`
}
