package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/authorization"
	"github.com/smallbiznis/toolhub/internal/clock"
	obsmetrics "github.com/smallbiznis/toolhub/internal/observability/metrics"
	"github.com/smallbiznis/toolhub/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobPurgeSessions      = "purge_sessions"
	JobEvictSessionStores = "evict_session_stores"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

// StoreEvicter drops session stores nobody has touched for a while.
type StoreEvicter interface {
	EvictIdle(now time.Time) int
}

// RetryEvicter forgets per-user retry counters that have gone quiet.
type RetryEvicter interface {
	EvictStaleRetries(now time.Time) int
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Auth    authdomain.Service
	Authz   authorization.Service
	Stores  StoreEvicter
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config
	Retries RetryEvicter                 `optional:"true"`
	Locker  *ratelimit.Locker            `optional:"true"`
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	auth    authdomain.Service
	authz   authorization.Service
	stores  StoreEvicter
	retries RetryEvicter
	genID   *snowflake.Node
	clock   clock.Clock
	locker  *ratelimit.Locker
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Auth == nil || p.Authz == nil || p.Stores == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		auth:    p.Auth,
		authz:   p.Authz,
		stores:  p.Stores,
		retries: p.Retries,
		genID:   p.GenID,
		clock:   p.Clock,
		locker:  p.Locker,
		metrics: m,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.ensureJobRun(ctx, name)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	s.metrics.AddItemsProcessed(name, run.processedCount)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out", zap.String("job", name), zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobPurgeSessions, s.PurgeSessionsJob},
		{JobEvictSessionStores, s.EvictSessionStoresJob},
	}

	var err error
	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// PurgeSessionsJob deletes sessions that expired or were revoked more than
// the grace period ago. Only one replica runs it per tick when redis is
// available.
func (s *Scheduler) PurgeSessionsJob(ctx context.Context) error {
	if err := s.authz.Authorize(ctx, authorization.ActorSystem, authorization.ObjectSession, authorization.ActionSessionPurge); err != nil {
		return err
	}

	release, ok, err := s.acquire(ctx, JobPurgeSessions)
	if err != nil || !ok {
		return err
	}
	defer release()

	n, err := s.auth.PurgeExpiredSessions(ctx, s.clock.Now().Add(-s.cfg.SessionGracePeriod))
	if err != nil {
		return err
	}
	jobRunFromContext(ctx).AddProcessed(int(n))
	return nil
}

// EvictSessionStoresJob is per process; every replica runs it.
func (s *Scheduler) EvictSessionStoresJob(ctx context.Context) error {
	now := s.clock.Now()
	n := s.stores.EvictIdle(now)
	if s.retries != nil {
		n += s.retries.EvictStaleRetries(now)
	}
	jobRunFromContext(ctx).AddProcessed(n)
	return nil
}

func (s *Scheduler) acquire(ctx context.Context, job string) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	key := "scheduler:" + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.RunInterval)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("release scheduler lock", zap.String("job", job), zap.Error(err))
		}
	}, true, nil
}
