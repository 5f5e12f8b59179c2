// Package sessionstore keeps the per-browser view of who is signed in and
// whether they have finished onboarding.
package sessionstore

import (
	"context"
	"sync"
	"time"

	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/navigation"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"go.uber.org/zap"
)

const (
	NoticeProfileUnavailable = "We couldn't load your profile. Some features may be unavailable."

	subscriberBuffer = 8
)

// SessionSource fetches the session behind a refresh token.
type SessionSource interface {
	GetSession(ctx context.Context, refreshToken string) (*authdomain.SessionView, error)
}

// State is an immutable snapshot of a Store.
type State struct {
	Loading  bool                    `json:"loading"`
	Session  *authdomain.SessionView `json:"session"`
	Profile  *profiledomain.Profile  `json:"profile"`
	Notice   string                  `json:"notice,omitempty"`
	Failure  *authdomain.Failure     `json:"failure,omitempty"`
	Redirect string                  `json:"redirect,omitempty"`
	Version  uint64                  `json:"version"`
}

// Guard converts the snapshot into navigation inputs for path. A network or
// unknown failure only carries a notice, so it never moves the visitor.
func (s State) Guard(path string) navigation.State {
	return navigation.State{
		Loading:       s.Loading,
		Unverified:    s.Failure != nil && !s.Failure.ForceReauth,
		HasSession:    s.Session != nil,
		HasProfile:    s.Profile != nil,
		TermsAccepted: s.Profile.Completed(),
		Path:          path,
	}
}

// Store owns one browser session's state. Only its methods mutate it.
type Store struct {
	sessions SessionSource
	resolver profiledomain.Resolver
	clock    clock.Clock
	log      *zap.Logger

	initOnce sync.Once
	initErr  error
	checkMu  sync.Mutex

	mu       sync.RWMutex
	state    State
	lastSeen time.Time
	subs     map[uint64]chan State
	nextSub  uint64
	closed   bool
}

func NewStore(sessions SessionSource, resolver profiledomain.Resolver, clk clock.Clock, log *zap.Logger) *Store {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		sessions: sessions,
		resolver: resolver,
		clock:    clk,
		log:      log.Named("sessionstore"),
		state:    State{Loading: true},
		lastSeen: clk.Now(),
		subs:     make(map[uint64]chan State),
	}
}

// Init performs the one-time session check. Loading stays true until it
// completes; later calls return the first result.
func (s *Store) Init(ctx context.Context, refreshToken string) error {
	s.initOnce.Do(func() {
		s.initErr = s.initialize(ctx, refreshToken)
	})
	s.touch()
	return s.initErr
}

// Revalidate repeats the session check once the access token or the refresh
// session has lapsed. A revoked or expired session clears the store and
// forces re-auth; a fresh check replaces the access token.
func (s *Store) Revalidate(ctx context.Context, refreshToken string) error {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()
	if !s.stale() {
		return nil
	}

	view, err := s.sessions.GetSession(ctx, refreshToken)
	if err != nil {
		s.fail(err)
		return err
	}
	s.update(func(st *State) {
		st.Session = view
		st.Failure = nil
		st.Redirect = ""
	})
	return nil
}

// stale reports whether the held session needs checking again. Views
// without an expiry are trusted until an auth event replaces them.
func (s *Store) stale() bool {
	s.mu.RLock()
	session := s.state.Session
	s.mu.RUnlock()
	if session == nil {
		return false
	}
	now := s.clock.Now()
	lapsed := func(at time.Time) bool { return !at.IsZero() && !now.Before(at) }
	return lapsed(session.ExpiresAt) || lapsed(session.RefreshExpiresAt)
}

func (s *Store) initialize(ctx context.Context, refreshToken string) error {
	view, err := s.sessions.GetSession(ctx, refreshToken)
	if err != nil {
		s.fail(err)
		return err
	}

	profile, resolveErr := s.resolver.Resolve(ctx, view.UserID)
	s.update(func(st *State) {
		st.Loading = false
		st.Session = view
		st.Profile = profile
		st.Failure = nil
		st.Redirect = ""
		st.Notice = ""
		if resolveErr != nil {
			st.Notice = NoticeProfileUnavailable
		}
	})
	return nil
}

// fail records a classified auth failure. Expired or invalid sessions are
// forced back to /auth; network and unknown failures only set a notice.
func (s *Store) fail(err error) {
	failure := authdomain.Classify(err)
	s.log.Debug("session check failed", zap.String("kind", string(failure.Kind)), zap.Error(err))
	s.update(func(st *State) {
		st.Loading = false
		st.Notice = failure.Notice
		st.Failure = &failure
		if failure.ForceReauth {
			st.Session = nil
			st.Profile = nil
			st.Redirect = navigation.PathAuth
		}
	})
}

// HandleEvent applies an auth state change. Events carrying a session re-run
// the profile resolver before the new state is published.
func (s *Store) HandleEvent(ctx context.Context, event authdomain.Event) {
	switch {
	case event.Type == authdomain.EventSignedOut:
		s.update(func(st *State) {
			st.Loading = false
			st.Session = nil
			st.Profile = nil
			st.Failure = nil
			st.Notice = ""
			st.Redirect = navigation.PathAuth
		})
	case event.Session != nil:
		profile, err := s.resolver.Resolve(ctx, event.Session.UserID)
		s.update(func(st *State) {
			next := *event.Session
			if next.RefreshToken == "" && st.Session != nil {
				next.RefreshToken = st.Session.RefreshToken
			}
			st.Loading = false
			st.Session = &next
			st.Profile = profile
			st.Failure = nil
			st.Redirect = ""
			st.Notice = ""
			if err != nil {
				st.Notice = NoticeProfileUnavailable
			}
		})
	case event.Type == authdomain.EventUserUpdated:
		if err := s.RefreshProfile(ctx); err != nil {
			s.log.Debug("refresh after user update failed", zap.Error(err))
		}
	}
}

// RefreshProfile re-resolves the profile for the current session.
func (s *Store) RefreshProfile(ctx context.Context) error {
	s.mu.RLock()
	session := s.state.Session
	s.mu.RUnlock()
	if session == nil {
		return nil
	}

	profile, err := s.resolver.Resolve(ctx, session.UserID)
	s.update(func(st *State) {
		if st.Session == nil || st.Session.UserID != session.UserID {
			return
		}
		if err != nil {
			st.Notice = NoticeProfileUnavailable
			return
		}
		st.Profile = profile
		st.Notice = ""
		st.Redirect = ""
	})
	return err
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe delivers every new state. The channel closes when cancel is
// called or the store is closed.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan State, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) UserID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Session == nil {
		return 0, false
	}
	return s.state.Session.UserID.Int64(), true
}

func (s *Store) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Store) touch() {
	s.mu.Lock()
	s.lastSeen = s.clock.Now()
	s.mu.Unlock()
}

// Close ends all subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) update(mutate func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.state.Version
	mutate(&s.state)
	s.state.Version = before + 1
	snapshot := s.state
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
