package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/auth/events"
	"github.com/smallbiznis/toolhub/internal/clock"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"go.uber.org/zap"
)

const DefaultIdleTTL = 30 * time.Minute

// Registry owns one Store per refresh token and routes auth events to the
// stores of the affected user.
type Registry struct {
	sessions SessionSource
	resolver profiledomain.Resolver
	clock    clock.Clock
	log      *zap.Logger
	idleTTL  time.Duration

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(sessions SessionSource, resolver profiledomain.Resolver, clk clock.Clock, log *zap.Logger, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Registry{
		sessions: sessions,
		resolver: resolver,
		clock:    clk,
		log:      log.Named("sessionstore.registry"),
		idleTTL:  idleTTL,
		stores:   make(map[string]*Store),
	}
}

// Load returns the initialised store for the token. An empty token yields an
// anonymous store. A cached store whose access token lapsed is checked again.
// Stores whose session check forced re-auth are not kept.
func (r *Registry) Load(ctx context.Context, refreshToken string) *Store {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		store := NewStore(r.sessions, r.resolver, r.clock, r.log)
		store.update(func(st *State) { st.Loading = false })
		return store
	}

	key := storeKey(token)
	r.mu.Lock()
	store, ok := r.stores[key]
	if !ok {
		store = NewStore(r.sessions, r.resolver, r.clock, r.log)
		r.stores[key] = store
	}
	r.mu.Unlock()

	err := store.Init(ctx, token)
	if err == nil && ok {
		err = store.Revalidate(ctx, token)
	}
	if err != nil {
		if failure := authdomain.Classify(err); failure.ForceReauth || !ok {
			r.remove(key, store)
		}
	}
	return store
}

// Rekey moves a store after its refresh token was rotated.
func (r *Registry) Rekey(oldToken, newToken string) {
	oldKey, newKey := storeKey(strings.TrimSpace(oldToken)), storeKey(strings.TrimSpace(newToken))
	if oldKey == newKey {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[oldKey]; ok {
		delete(r.stores, oldKey)
		r.stores[newKey] = store
	}
}

// Forget drops the store for a token, closing its subscribers.
func (r *Registry) Forget(refreshToken string) {
	key := storeKey(strings.TrimSpace(refreshToken))
	r.mu.Lock()
	store, ok := r.stores[key]
	delete(r.stores, key)
	r.mu.Unlock()
	if ok {
		store.Close()
	}
}

// RefreshProfile re-resolves the profile in every store of userID.
func (r *Registry) RefreshProfile(ctx context.Context, userID snowflake.ID) error {
	var firstErr error
	for _, store := range r.storesFor(userID) {
		if err := store.RefreshProfile(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dispatch routes one auth event. Signed-out sessions are dropped after
// their final state is published.
func (r *Registry) Dispatch(ctx context.Context, event authdomain.Event) {
	for _, store := range r.storesFor(event.UserID) {
		if event.Type == authdomain.EventSignedOut {
			snap := store.Snapshot()
			if snap.Session == nil || snap.Session.SessionID != event.SessionID {
				continue
			}
		}
		store.HandleEvent(ctx, event)
	}
	if event.Type == authdomain.EventSignedOut {
		r.evictWhere(func(s *Store) bool {
			snap := s.Snapshot()
			return snap.Session == nil && !snap.Loading
		})
	}
}

// Run consumes the bus until ctx ends.
func (r *Registry) Run(ctx context.Context, bus events.Bus) {
	sub := bus.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			r.Dispatch(ctx, event)
		}
	}
}

// EvictIdle removes stores untouched for the idle TTL and reports how many.
func (r *Registry) EvictIdle(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)
	return r.evictWhere(func(s *Store) bool {
		return s.LastSeen().Before(cutoff)
	})
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

func (r *Registry) storesFor(userID snowflake.ID) []*Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Store, 0, 2)
	for _, store := range r.stores {
		if id, ok := store.UserID(); ok && id == userID.Int64() {
			out = append(out, store)
		}
	}
	return out
}

func (r *Registry) evictWhere(match func(*Store) bool) int {
	r.mu.Lock()
	var evicted []*Store
	for key, store := range r.stores {
		if match(store) {
			delete(r.stores, key)
			evicted = append(evicted, store)
		}
	}
	r.mu.Unlock()
	for _, store := range evicted {
		store.Close()
	}
	return len(evicted)
}

func (r *Registry) remove(key string, store *Store) {
	r.mu.Lock()
	if current, ok := r.stores[key]; ok && current == store {
		delete(r.stores, key)
	}
	r.mu.Unlock()
}

func storeKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
