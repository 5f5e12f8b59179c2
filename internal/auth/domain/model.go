// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MinPasswordLength is enforced before any account is created.
const MinPasswordLength = 6

// User represents a system user account.
type User struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	Email        string            `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash *string           `gorm:"type:text"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session represents a persisted login. The raw refresh token is only ever
// held by the client; the row keeps its sha256.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	RefreshTokenHash string       `gorm:"column:refresh_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// SessionView is the session handed to clients and session stores.
// ExpiresAt belongs to the access token; RefreshExpiresAt to the session.
type SessionView struct {
	SessionID        snowflake.ID `json:"session_id"`
	UserID           snowflake.ID `json:"user_id"`
	Email            string       `json:"email"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"-"`
	ExpiresAt        time.Time    `json:"expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

// Claims are carried by access tokens.
type Claims struct {
	UserID    snowflake.ID
	SessionID snowflake.ID
	Email     string
	ExpiresAt time.Time
}
