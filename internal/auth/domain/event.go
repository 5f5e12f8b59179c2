package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is an auth state change. Session is nil for SIGNED_OUT.
type Event struct {
	Type       EventType    `json:"type"`
	UserID     snowflake.ID `json:"user_id"`
	SessionID  snowflake.ID `json:"session_id"`
	Session    *SessionView `json:"session,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
