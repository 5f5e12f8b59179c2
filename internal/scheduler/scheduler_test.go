package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/authorization"
	"github.com/smallbiznis/toolhub/internal/clock"
	obsmetrics "github.com/smallbiznis/toolhub/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuth struct {
	authdomain.Service
	purged int64
	before time.Time
	err    error
}

func (f *fakeAuth) PurgeExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.purged, f.err
}

type fakeAuthz struct {
	authorization.Service
	deny bool
}

func (f *fakeAuthz) Authorize(_ context.Context, actor, object, action string) error {
	if f.deny || actor != authorization.ActorSystem {
		return authorization.ErrForbidden
	}
	return nil
}

type fakeStores struct{ evicted int }

func (f *fakeStores) EvictIdle(time.Time) int { return f.evicted }

type fakeRetries struct {
	evicted int
	at      time.Time
}

func (f *fakeRetries) EvictStaleRetries(now time.Time) int {
	f.at = now
	return f.evicted
}

var testLabels = obsmetrics.Config{ServiceName: "toolhub", Environment: "test"}

func newTestScheduler(t *testing.T, cfg Config, auth *fakeAuth, authz *fakeAuthz, stores *fakeStores) (*Scheduler, *prometheus.Registry, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := New(Params{
		Log:     zap.NewNop(),
		Auth:    auth,
		Authz:   authz,
		Stores:  stores,
		GenID:   node,
		Clock:   clk,
		Config:  cfg,
		Metrics: obsmetrics.NewSchedulerMetrics(registry, testLabels),
	})
	require.NoError(t, err)
	return s, registry, clk
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceProcessesBothJobs(t *testing.T) {
	auth := &fakeAuth{purged: 3}
	s, registry, clk := newTestScheduler(t, Config{}, auth, &fakeAuthz{}, &fakeStores{evicted: 2})

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, clk.Now().Add(-24*time.Hour), auth.before)
	assert.Equal(t, float64(3), counterValue(t, registry, "toolhub_scheduler_items_processed_total", jobLabels(JobPurgeSessions)))
	assert.Equal(t, float64(2), counterValue(t, registry, "toolhub_scheduler_items_processed_total", jobLabels(JobEvictSessionStores)))
	assert.Equal(t, float64(1), counterValue(t, registry, "toolhub_scheduler_job_runs_total", jobLabels(JobPurgeSessions)))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	auth := &fakeAuth{purged: 3}
	s, registry, _ := newTestScheduler(t, Config{EnabledJobs: []string{"EVICT_SESSION_STORES"}}, auth, &fakeAuthz{}, &fakeStores{evicted: 1})

	require.NoError(t, s.RunOnce(context.Background()))

	assert.True(t, auth.before.IsZero())
	assert.Equal(t, float64(1), counterValue(t, registry, "toolhub_scheduler_job_runs_total", jobLabels(JobEvictSessionStores)))
}

func TestEvictionCountsStaleRetries(t *testing.T) {
	s, registry, clk := newTestScheduler(t, Config{EnabledJobs: []string{JobEvictSessionStores}}, &fakeAuth{}, &fakeAuthz{}, &fakeStores{evicted: 1})
	retries := &fakeRetries{evicted: 4}
	s.retries = retries

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, clk.Now(), retries.at)
	assert.Equal(t, float64(5), counterValue(t, registry, "toolhub_scheduler_items_processed_total", jobLabels(JobEvictSessionStores)))
}

func TestPurgeDeniedIsReported(t *testing.T) {
	s, registry, _ := newTestScheduler(t, Config{EnabledJobs: []string{JobPurgeSessions}}, &fakeAuth{}, &fakeAuthz{deny: true}, &fakeStores{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	labels := jobLabels(JobPurgeSessions)
	labels["reason"] = obsmetrics.SchedulerJobReasonUnknown
	assert.Equal(t, float64(1), counterValue(t, registry, "toolhub_scheduler_job_errors_total", labels))
}

func TestPurgeErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	s, _, _ := newTestScheduler(t, Config{EnabledJobs: []string{JobPurgeSessions}}, &fakeAuth{err: boom}, &fakeAuthz{}, &fakeStores{})

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobPurgeSessions)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	s, registry, _ := newTestScheduler(t, Config{}, &fakeAuth{}, &fakeAuthz{}, &fakeStores{})

	err := s.runJob(context.Background(), "slow_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := jobLabels("slow_job")
	labels["reason"] = obsmetrics.SchedulerJobReasonDeadlineExceeded
	assert.Equal(t, float64(1), counterValue(t, registry, "toolhub_scheduler_job_errors_total", labels))
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{RunInterval: time.Hour}, &fakeAuth{}, &fakeAuthz{}, &fakeStores{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}
}

func jobLabels(job string) map[string]string {
	return map[string]string{
		"service": testLabels.ServiceName,
		"env":     testLabels.Environment,
		"job":     job,
	}
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
