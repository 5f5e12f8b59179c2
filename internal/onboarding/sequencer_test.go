package onboarding

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/clock"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"github.com/smallbiznis/toolhub/internal/retry"
	"github.com/smallbiznis/toolhub/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[snowflake.ID]*profiledomain.Profile
	upserts   int
	resolves  int
	hideAfter bool
	upsertErr error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: make(map[snowflake.ID]*profiledomain.Profile)}
}

func (f *fakeProfiles) Resolve(_ context.Context, userID snowflake.ID) (*profiledomain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if f.hideAfter && f.upserts > 0 {
		return nil, nil
	}
	row, ok := f.rows[userID]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p *profiledomain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	out := *p
	f.rows[p.ID] = &out
	return nil
}

func (f *fakeProfiles) Update(context.Context, snowflake.ID, profiledomain.UpdateRequest) (*profiledomain.Profile, error) {
	return nil, errors.New("not used")
}

type fakeUploader struct {
	calls int
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, obj storage.Object) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.test/" + obj.Key, nil
}

type fakeRefresher struct{ calls []snowflake.ID }

func (f *fakeRefresher) RefreshProfile(_ context.Context, userID snowflake.ID) error {
	f.calls = append(f.calls, userID)
	return nil
}

type fixture struct {
	seq       *Sequencer
	profiles  *fakeProfiles
	uploader  *fakeUploader
	refresher *fakeRefresher
}

func newFixture() *fixture {
	f := &fixture{
		profiles:  newFakeProfiles(),
		uploader:  &fakeUploader{},
		refresher: &fakeRefresher{},
	}
	policy := retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	f.seq = NewSequencer(zap.NewNop(), f.profiles, f.uploader, f.refresher,
		clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)), nil, nil, policy, 0)
	return f
}

func session(id snowflake.ID) *authdomain.SessionView {
	return &authdomain.SessionView{UserID: id, SessionID: id + 1, Email: "a@b.com"}
}

func TestRunWithoutSession(t *testing.T) {
	f := newFixture()
	res, err := f.seq.Run(context.Background(), Input{Nickname: "ann", AcceptTerms: true}, nil)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, "/auth", res.Redirect)
	assert.Zero(t, f.profiles.upserts)
}

func TestRunRequiresTerms(t *testing.T) {
	f := newFixture()
	_, err := f.seq.Run(context.Background(), Input{Session: session(7), Nickname: "ann"}, nil)
	assert.ErrorIs(t, err, ErrTermsRequired)
	assert.Zero(t, f.profiles.upserts)
}

func TestRunRejectsLargeAvatarBeforeUpload(t *testing.T) {
	f := newFixture()
	in := Input{
		Session:     session(7),
		Nickname:    "ann",
		AcceptTerms: true,
		Avatar: &Avatar{
			Filename:    "big.png",
			ContentType: "image/png",
			Size:        DefaultMaxAvatarBytes + 1,
			Body:        bytes.NewReader(nil),
		},
	}
	_, err := f.seq.Run(context.Background(), in, nil)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, f.uploader.calls)
	assert.Zero(t, f.profiles.upserts)
}

func TestRunRejectsUnsupportedAvatar(t *testing.T) {
	f := newFixture()
	in := Input{
		Session:     session(7),
		Nickname:    "ann",
		AcceptTerms: true,
		Avatar:      &Avatar{ContentType: "application/pdf", Size: 10, Body: bytes.NewReader([]byte("x"))},
	}
	_, err := f.seq.Run(context.Background(), in, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Zero(t, f.uploader.calls)
}

func TestRunUploadFailure(t *testing.T) {
	f := newFixture()
	f.uploader.err = storage.ErrUploadFailed
	in := Input{
		Session:     session(7),
		Nickname:    "ann",
		AcceptTerms: true,
		Avatar:      &Avatar{ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("png"))},
	}
	_, err := f.seq.Run(context.Background(), in, nil)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, 1, f.uploader.calls)
	assert.Zero(t, f.profiles.upserts)
}

func TestRunSuccess(t *testing.T) {
	f := newFixture()
	var seen []Progress
	in := Input{
		Session:     session(7),
		Nickname:    " ann ",
		Name:        "Ann",
		AcceptTerms: true,
		Avatar:      &Avatar{ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("png"))},
	}
	res, err := f.seq.Run(context.Background(), in, func(p Progress) { seen = append(seen, p) })
	require.NoError(t, err)

	assert.Equal(t, "/", res.Redirect)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "ann", res.Profile.Nickname)
	assert.True(t, res.Profile.TermsAccepted)
	assert.Contains(t, res.Profile.AvatarURL, "https://cdn.test/")
	assert.Equal(t, []snowflake.ID{7}, f.refresher.calls)

	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1].Percent)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].Percent, seen[i-1].Percent)
	}
	assert.Equal(t, seen, res.Progress)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture()
	in := Input{Session: session(7), Nickname: "ann", AcceptTerms: true}

	first, err := f.seq.Run(context.Background(), in, nil)
	require.NoError(t, err)
	second, err := f.seq.Run(context.Background(), Input{Session: session(7)}, nil)
	require.NoError(t, err)

	assert.Len(t, f.profiles.rows, 1)
	assert.Equal(t, first.Profile.Nickname, second.Profile.Nickname)
}

func TestRunVerificationGivesUpAfterThreeAttempts(t *testing.T) {
	f := newFixture()
	f.profiles.hideAfter = true
	in := Input{Session: session(7), Nickname: "ann", AcceptTerms: true}

	var verifies int
	res, err := f.seq.Run(context.Background(), in, func(p Progress) {
		if p.Step == StepVerify {
			verifies++
		}
	})
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, 3, verifies)
	// one resolve for the terms check plus three polls
	assert.Equal(t, 4, f.profiles.resolves)
	assert.Equal(t, 1, res.Retries)
	assert.Empty(t, f.refresher.calls)

	last := res.Progress[len(res.Progress)-1]
	assert.True(t, last.Retry)
	assert.Less(t, last.Percent, 100)

	_, err = f.seq.Run(context.Background(), in, nil)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, 2, f.seq.Retries(7))
}

func TestStaleRetriesAreEvicted(t *testing.T) {
	f := newFixture()
	f.profiles.hideAfter = true
	clk := f.seq.clock.(*clock.FakeClock)

	_, err := f.seq.Run(context.Background(), Input{Session: session(7), Nickname: "ann", AcceptTerms: true}, nil)
	require.ErrorIs(t, err, ErrVerificationFailed)
	require.Equal(t, 1, f.seq.Retries(7))

	assert.Zero(t, f.seq.EvictStaleRetries(clk.Now().Add(RetryRetention)))
	assert.Equal(t, 1, f.seq.Retries(7))

	clk.Advance(RetryRetention + time.Minute)
	assert.Equal(t, 1, f.seq.EvictStaleRetries(clk.Now()))
	assert.Zero(t, f.seq.Retries(7))
}

func TestRunSaveFailure(t *testing.T) {
	f := newFixture()
	f.profiles.upsertErr = errors.New("db down")
	_, err := f.seq.Run(context.Background(), Input{Session: session(7), Nickname: "ann", AcceptTerms: true}, nil)
	assert.ErrorIs(t, err, ErrSaveProfile)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := newFixture()
	locker := f.seq.locker
	_, ok, err := locker.TryLock(context.Background(), "onboarding:lock:7", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.seq.Run(context.Background(), Input{Session: session(7), Nickname: "ann", AcceptTerms: true}, nil)
	assert.ErrorIs(t, err, ErrInProgress)
}
