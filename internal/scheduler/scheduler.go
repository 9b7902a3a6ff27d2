package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Refresher runs one aggregation cycle and writes it to the cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RetryPolicy controls how a failed cycle is retried before waiting for the
// next interval. The delay doubles after every failed attempt.
type RetryPolicy struct {
	MaxRetries   int
	Backoff      time.Duration
	CycleTimeout time.Duration
}

// Scheduler periodically refreshes the cached aggregate.
type Scheduler struct {
	scheduler    *gocron.Scheduler
	refresher    Refresher
	interval     time.Duration
	startupDelay time.Duration
	retry        RetryPolicy

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. The first refresh runs after startupDelay,
// then every interval.
func New(refresher Refresher, interval, startupDelay time.Duration, retry RetryPolicy) *Scheduler {
	if retry.CycleTimeout <= 0 {
		retry.CycleTimeout = 2 * time.Minute
	}
	if retry.Backoff <= 0 {
		retry.Backoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler:    gocron.NewScheduler(time.UTC),
		refresher:    refresher,
		interval:     interval,
		startupDelay: startupDelay,
		retry:        retry,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return errors.New("scheduler: refresh interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).
		StartAt(time.Now().Add(s.startupDelay)).
		SingletonMode().
		Do(func() {
			log.Println("scheduler: running refresh job")
			if err := s.RunOnce(s.ctx); err != nil {
				log.Printf("ERROR: scheduler: refresh gave up, serving cached data until next run: %v", err)
				return
			}
			log.Println("scheduler: completed refresh job")
		})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Printf("INFO: scheduler: first refresh in %s, then every %s", s.startupDelay, s.interval)
	return nil
}

// RunOnce performs one refresh, retrying with exponential backoff.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	backoff := s.retry.Backoff
	var lastErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("scheduler: refresh failed (attempt=%d), retrying in %s: %v", attempt, backoff, lastErr)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		cycleCtx, cancel := context.WithTimeout(ctx, s.retry.CycleTimeout)
		lastErr = s.refresher.Refresh(cycleCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return lastErr
}

// Stop cancels any in-flight refresh and future jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
