// Package scheduler runs scrape cycles on a fixed interval, never more than
// one at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/logger"
	"github.com/Adda-Baaj/trendwatch/internal/pipeline"
)

// ErrBusy is returned by Trigger while a cycle is running.
var ErrBusy = errors.New("a scrape cycle is already running")

// ErrStopped is returned by Trigger after Shutdown.
var ErrStopped = errors.New("scheduler is shutting down")

// CycleRunner runs one scrape cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (pipeline.Report, error)
}

// Status is a snapshot of the scheduler.
type Status struct {
	Running    bool             `json:"running"`
	Interval   time.Duration    `json:"interval"`
	Runs       int64            `json:"runs"`
	Dropped    int64            `json:"dropped_ticks"`
	LastReport *pipeline.Report `json:"last_report,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
}

// Scheduler owns the single-run guard shared by ticks and manual triggers.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	log      logger.Logger

	running atomic.Bool
	runs    atomic.Int64
	dropped atomic.Int64

	mu      sync.Mutex
	active  chan struct{} // closed when the running cycle returns
	stopped bool
	last    *pipeline.Report
	lastErr error
}

// New returns a Scheduler. A non-positive interval defaults to 15 minutes.
func New(runner CycleRunner, interval time.Duration, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{runner: runner, interval: interval, log: logger.Ensure(log)}
}

// Start runs a cycle immediately and then on every tick until ctx is done.
// Ticks that arrive while a cycle is running are dropped; the ticker keeps at
// most one pending tick, so a long cycle is followed by one catch-up run
// rather than a burst.
func (s *Scheduler) Start(ctx context.Context) error {
	s.log.InfoObj("scheduler started", "scheduler_start", map[string]any{
		"interval": s.interval.String(),
	})

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.InfoObj("scheduler stopped", "scheduler_stop", nil)
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Trigger(ctx); errors.Is(err, ErrBusy) {
		s.dropped.Add(1)
		s.log.WarnObj("scheduled cycle skipped, previous cycle still running", "cycle_skipped", nil)
	}
}

// Trigger runs one cycle now, or returns ErrBusy without waiting when a cycle
// is already running.
func (s *Scheduler) Trigger(ctx context.Context) (pipeline.Report, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return pipeline.Report{}, ErrStopped
	}
	if s.active != nil {
		s.mu.Unlock()
		return pipeline.Report{}, ErrBusy
	}
	done := make(chan struct{})
	s.active = done
	s.running.Store(true)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active = nil
		s.running.Store(false)
		s.mu.Unlock()
		close(done)
	}()

	rep, err := s.runner.RunCycle(ctx)
	s.runs.Add(1)

	s.mu.Lock()
	s.last = &rep
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.log.ErrorObj("scrape cycle failed", "cycle_error", map[string]any{"error": err})
	}
	return rep, err
}

// Shutdown rejects further cycles and blocks until the running one, if any,
// returns or ctx is done. Callers release the pipeline's stores only after it
// returns nil.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	done := s.active
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	st := Status{
		Running:  s.running.Load(),
		Interval: s.interval,
		Runs:     s.runs.Load(),
		Dropped:  s.dropped.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil {
		rep := *s.last
		st.LastReport = &rep
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
