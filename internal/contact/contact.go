// Package contact stores contact form submissions and notifies the team.
package contact

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidMessage = errors.New("invalid_message")
)

const (
	maxNameLength    = 200
	maxSubjectLength = 300
	maxMessageLength = 5000
)

type Message struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	Email     string        `gorm:"type:text;not null" json:"email"`
	Subject   string        `gorm:"type:text" json:"subject"`
	Body      string        `gorm:"column:message;type:text;not null" json:"message"`
	UserID    *snowflake.ID `json:"user_id,omitempty"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

func (Message) TableName() string { return "contact_messages" }

type SubmitRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
