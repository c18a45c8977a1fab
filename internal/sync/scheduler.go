// Package sync runs reconciliation passes in the background, one at a time.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/metrics"
	"github.com/nhle/mail-triage/internal/reconcile"
)

// DefaultInterval is the minimum spacing between non-forced passes.
const DefaultInterval = 20 * time.Second

// Runner executes one reconciliation pass.
type Runner interface {
	Run(ctx context.Context) (reconcile.Result, error)
}

// Status is a snapshot of the scheduler's bookkeeping.
type Status struct {
	Running        bool
	RunID          string // id of the running or most recent pass
	LastAttempted  time.Time
	LastSuccessful time.Time
	LastError      error
	LastResult     reconcile.Result
	AuthRequired   bool
	// Retriable marks a LastError the provider is expected to clear on
	// its own, such as throttling or a 5xx.
	Retriable bool
}

// Scheduler guarantees at most one pass in flight. Requests that arrive
// while a pass runs, or sooner than the interval after the last attempt,
// are dropped rather than queued.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     gosync.Mutex
	status Status
	passes gosync.WaitGroup
	done   chan Status

	loopMu   gosync.Mutex
	stopCh   chan struct{}
	loopDone chan struct{}
}

// New creates a Scheduler for runner. A non-positive interval uses
// DefaultInterval.
func New(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		done:     make(chan Status, 1),
	}
}

// RequestSync starts a pass in the background and returns true, unless a
// pass is already running or, when force is false, the interval has not
// elapsed since the last attempted pass. It never blocks on a pass.
//
// The interval counts from the last attempted pass, failed or not, so a
// failing provider is retried no faster than once per interval. Only a
// forced request bypasses it.
func (s *Scheduler) RequestSync(force bool) bool {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		metrics.SyncRequests.WithLabelValues("busy").Inc()
		return false
	}
	now := s.now()
	if !force && !s.status.LastAttempted.IsZero() && now.Sub(s.status.LastAttempted) < s.interval {
		s.mu.Unlock()
		metrics.SyncRequests.WithLabelValues("throttled").Inc()
		return false
	}

	runID := uuid.New().String()
	s.status.Running = true
	s.status.RunID = runID
	s.status.LastAttempted = now
	s.passes.Add(1)
	s.mu.Unlock()

	metrics.SyncRequests.WithLabelValues("started").Inc()
	go s.runPass(runID)
	return true
}

// runPass executes one pass and records its outcome. A panic inside the
// runner is recovered and recorded as the pass error.
func (s *Scheduler) runPass(runID string) {
	defer s.passes.Done()

	logger := s.logger.With(zap.String("run_id", runID))
	start := time.Now()

	var (
		res reconcile.Result
		err error
	)
	status := "success"

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sync pass panicked: %v", r)
				status = "panic"
			}
		}()
		res, err = s.runner.Run(context.Background())
	}()
	if err != nil && status != "panic" {
		status = "failed"
	}
	metrics.RecordSyncPass(status, time.Since(start))

	s.mu.Lock()
	s.status.Running = false
	s.status.LastError = err
	s.status.AuthRequired = mailbox.IsAuthUnavailable(err)
	s.status.Retriable = mailbox.IsRetriable(err)
	if err == nil {
		s.status.LastSuccessful = s.now()
		s.status.LastResult = res
	}
	snapshot := s.status
	s.mu.Unlock()
	s.publish(snapshot)

	if err != nil {
		if snapshot.Retriable {
			logger.Warn("sync pass failed, will retry", zap.String("status", status), zap.Error(err))
			return
		}
		logger.Error("sync pass failed", zap.String("status", status), zap.Error(err))
		return
	}
	logger.Info("sync pass finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("write_failures", res.WriteFailures),
	)
}

// publish hands st to a waiting listener, replacing an unread older
// snapshot so a slow listener only ever sees the latest pass.
func (s *Scheduler) publish(st Status) {
	for {
		select {
		case s.done <- st:
			return
		default:
		}
		select {
		case <-s.done:
		default:
		}
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Wait blocks until no pass is running.
func (s *Scheduler) Wait() {
	s.passes.Wait()
}

// Start requests a pass immediately and then on every interval tick until
// ctx is done or Stop is called. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.loopMu.Lock()
	if s.stopCh != nil {
		s.loopMu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	stopCh, done := s.stopCh, s.loopDone
	s.loopMu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RequestSync(false)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				s.RequestSync(false)
			}
		}
	}()
}

// Stop halts the ticker loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	stopCh, done := s.stopCh, s.loopDone
	s.stopCh, s.loopDone = nil, nil
	s.loopMu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}
	s.passes.Wait()
}
