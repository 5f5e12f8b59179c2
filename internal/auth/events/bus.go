// Package events fans auth state changes out to session stores, across
// processes when redis is available.
package events

import (
	"context"
	"sync"

	"github.com/smallbiznis/toolhub/internal/auth/domain"
)

const DefaultSubscriberBuffer = 32

type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type Bus interface {
	Publisher
	Subscribe() *Subscription
}

// LocalBus delivers events to in-process subscribers. Slow subscribers drop events.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan domain.Event
	nextID uint64
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[uint64]chan domain.Event)}
}

func (b *LocalBus) Publish(_ context.Context, event domain.Event) error {
	b.deliver(event)
	return nil
}

func (b *LocalBus) deliver(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *LocalBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, DefaultSubscriberBuffer)
	b.subs[id] = ch
	return &Subscription{bus: b, id: id, ch: ch}
}

func (b *LocalBus) unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

type Subscription struct {
	bus  *LocalBus
	id   uint64
	ch   chan domain.Event
	once sync.Once
}

// Events is closed after Close.
func (s *Subscription) Events() <-chan domain.Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.unsubscribe(s.id)
	})
}
