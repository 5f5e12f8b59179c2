// Package realtime fans row changes out to in-process subscribers.
package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

const DefaultSubscriberBuffer = 32

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidTopic   = errors.New("invalid_topic")
)

// Change is one row-level change on a table.
type Change struct {
	Table      string          `json:"table"`
	Type       string          `json:"type"`
	Record     json.RawMessage `json:"record,omitempty"`
	OldRecord  json.RawMessage `json:"old_record,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Topic scopes a table to one key, e.g. chat_messages:<conversation id>.
func Topic(table, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return table
	}
	return table + ":" + key
}

type Hub struct {
	mu               sync.RWMutex
	topics           map[string]*topic
	subscriberBuffer int
	onDrop           func(Change)
}

type topic struct {
	mu     sync.Mutex
	subs   map[uint64]chan Change
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan Change
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		topics:           make(map[string]*topic),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// OnDrop registers a callback for changes a slow subscriber missed.
func (h *Hub) OnDrop(fn func(Change)) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

func (h *Hub) Publish(name string, change Change) {
	if h == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	h.mu.RLock()
	t := h.topics[name]
	onDrop := h.onDrop
	h.mu.RUnlock()
	if t == nil {
		return
	}

	// Sends stay under t.mu so unsubscribe cannot close a channel mid-send.
	dropped := 0
	t.mu.Lock()
	for _, ch := range t.subs {
		select {
		case ch <- change:
		default:
			dropped++
		}
	}
	t.mu.Unlock()

	if onDrop != nil {
		for i := 0; i < dropped; i++ {
			onDrop(change)
		}
	}
}

func (h *Hub) Subscribe(name string) (*Subscription, error) {
	if h == nil {
		return nil, ErrHubUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTopic
	}

	t := h.ensureTopic(name)
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	ch := make(chan Change, h.subscriberBuffer)
	t.subs[id] = ch
	t.mu.Unlock()

	return &Subscription{hub: h, topic: name, id: id, ch: ch}, nil
}

// Subscribers reports how many subscriptions a topic has.
func (h *Hub) Subscribers(name string) int {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (h *Hub) ensureTopic(name string) *topic {
	h.mu.RLock()
	current := h.topics[name]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.topics[name]
	if current == nil {
		current = &topic{subs: make(map[uint64]chan Change)}
		h.topics[name] = current
	}
	return current
}

func (h *Hub) unsubscribe(name string, id uint64) {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	if t == nil {
		return
	}

	t.mu.Lock()
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
	remaining := len(t.subs)
	t.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	if h.topics[name] == t {
		t.mu.Lock()
		if len(t.subs) == 0 {
			delete(h.topics, name)
		}
		t.mu.Unlock()
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Change {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}
