package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/partsdepot/cart-service/pkg/logger"
)

const defaultInterval = time.Hour

type cronMetrics interface {
	ObserveRun(job string, duration time.Duration, err error)
	IncSkipped()
}

// ServiceParams configure the cron service. JobTimeout bounds each job run;
// LockRefresh, when set, is how often the leader extends its lease while a
// cycle is in progress.
type ServiceParams struct {
	Logger      *logger.Logger
	Registry    *Registry
	Lock        Lock
	Metrics     cronMetrics
	Interval    time.Duration
	JobTimeout  time.Duration
	LockRefresh time.Duration
}

// Service runs every registered job once per interval on whichever worker
// holds the lock.
type Service struct {
	logg        *logger.Logger
	registry    *Registry
	lock        Lock
	metrics     cronMetrics
	interval    time.Duration
	jobTimeout  time.Duration
	lockRefresh time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:        params.Logger,
		registry:    params.Registry,
		lock:        params.Lock,
		metrics:     params.Metrics,
		interval:    params.Interval,
		jobTimeout:  params.JobTimeout,
		lockRefresh: params.LockRefresh,
		now:         time.Now,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// RunOnce performs a single cycle. The returned error combines every job
// failure of the cycle.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

// Run performs a cycle immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with errors", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !acquired {
		s.recordSkip()
		s.logg.Info(ctx, "cron lock held by another worker, skipping cycle")
		return nil
	}

	cycleCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopHeartbeat := s.startHeartbeat(cycleCtx, cancel)
	defer func() {
		stopHeartbeat()
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	started := s.now()
	var errs error
	for _, job := range s.registry.Jobs() {
		if err := context.Cause(cycleCtx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cycle aborted before %s: %w", job.Name(), err))
			break
		}
		errs = multierr.Append(errs, s.runJob(cycleCtx, job))
	}

	summary := s.logg.WithFields(ctx, map[string]any{
		"jobs":        s.registry.Names(),
		"failed":      len(multierr.Errors(errs)),
		"duration_ms": s.now().Sub(started).Milliseconds(),
	})
	s.logg.Info(summary, "cron cycle complete")
	return errs
}

// startHeartbeat extends the lease until the returned stop func is called. If
// the lease is lost the cycle context is canceled so no further jobs start.
func (s *Service) startHeartbeat(ctx context.Context, abort context.CancelCauseFunc) func() {
	if s.lockRefresh <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(s.lockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.lock.Refresh(ctx)
				if errors.Is(err, ErrLockLost) {
					s.logg.Warn(ctx, "cron lock lost mid-cycle")
					abort(err)
					return
				}
				if err != nil {
					s.logg.Error(ctx, "failed to refresh cron lock", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
		elapsed := s.now().Sub(start)
		s.recordRun(name, elapsed, err)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Info(logCtx, "cron job completed")
	}()

	return job.Run(jobCtx)
}

func (s *Service) recordRun(job string, elapsed time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.ObserveRun(job, elapsed, err)
	}
}

func (s *Service) recordSkip() {
	if s.metrics != nil {
		s.metrics.IncSkipped()
	}
}
