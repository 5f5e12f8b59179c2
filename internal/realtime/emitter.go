package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// Emitter announces a change made by this process. When postgres triggers
// deliver changes through LISTEN/NOTIFY the emitter is a no-op.
type Emitter interface {
	Emit(ctx context.Context, change Change) error
}

// Router maps a change to the topics that should receive it.
type Router func(Change) []string

// DefaultRouter publishes on the table topic and, for chat messages, on the
// conversation topic.
func DefaultRouter(change Change) []string {
	topics := []string{change.Table}
	if change.Table != TableChatMessages {
		return topics
	}
	var row struct {
		ConversationID json.Number `json:"conversation_id"`
	}
	record := change.Record
	if len(record) == 0 {
		record = change.OldRecord
	}
	if err := json.Unmarshal(record, &row); err == nil && row.ConversationID != "" {
		topics = append(topics, Topic(TableChatMessages, row.ConversationID.String()))
	}
	return topics
}

const (
	TableChatMessages = "chat_messages"
	TableTools        = "ai_tools"
)

type LocalEmitter struct {
	hub   *Hub
	route Router
	now   func() time.Time
}

func NewLocalEmitter(hub *Hub) *LocalEmitter {
	return &LocalEmitter{hub: hub, route: DefaultRouter, now: time.Now}
}

func (e *LocalEmitter) Emit(_ context.Context, change Change) error {
	if change.OccurredAt.IsZero() {
		change.OccurredAt = e.now().UTC()
	}
	for _, name := range e.route(change) {
		e.hub.Publish(name, change)
	}
	return nil
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, Change) error { return nil }

// NewRecordChange marshals record into a change.
func NewRecordChange(table, changeType string, record any) (Change, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Change{}, err
	}
	return Change{Table: table, Type: changeType, Record: raw}, nil
}
