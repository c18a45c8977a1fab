package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/reconcile"
)

// fakeRunner counts calls and optionally blocks until released.
type fakeRunner struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool

	mu      gosync.Mutex
	release chan struct{}
	started chan struct{}
	err     error
	panicV  any
	result  reconcile.Result
}

func (r *fakeRunner) Run(context.Context) (reconcile.Result, error) {
	if r.running.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.running.Add(-1)
	r.calls.Add(1)

	r.mu.Lock()
	release, started, err, panicV, result := r.release, r.started, r.err, r.panicV, r.result
	r.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if panicV != nil {
		panic(panicV)
	}
	return result, err
}

// clock is a manually advanced time source.
type clock struct {
	mu  gosync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestScheduler(r Runner) (*Scheduler, *clock) {
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(r, 20*time.Second, zap.NewNop())
	s.now = c.Now
	return s, c
}

func TestRequestSyncRunsOnePassAtATime(t *testing.T) {
	r := &fakeRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s, _ := newTestScheduler(r)

	require.True(t, s.RequestSync(true))
	<-r.started
	assert.True(t, s.Status().Running)

	for i := 0; i < 5; i++ {
		assert.False(t, s.RequestSync(true), "busy scheduler must drop requests")
	}

	close(r.release)
	s.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	assert.False(t, r.overlap.Load())
	assert.False(t, s.Status().Running)
}

func TestRequestSyncConcurrentCallers(t *testing.T) {
	r := &fakeRunner{release: make(chan struct{})}
	s, _ := newTestScheduler(r)

	var started atomic.Int32
	var wg gosync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.RequestSync(true) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	close(r.release)
	s.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestRequestSyncThrottle(t *testing.T) {
	r := &fakeRunner{}
	s, c := newTestScheduler(r)

	require.True(t, s.RequestSync(false))
	s.Wait()

	c.Advance(10 * time.Second)
	assert.False(t, s.RequestSync(false), "inside the interval")
	assert.True(t, s.RequestSync(true), "force ignores the interval")
	s.Wait()

	c.Advance(19 * time.Second)
	assert.False(t, s.RequestSync(false))

	c.Advance(time.Second)
	assert.True(t, s.RequestSync(false))
	s.Wait()

	assert.Equal(t, int32(3), r.calls.Load())
}

func TestStatusTimestamps(t *testing.T) {
	r := &fakeRunner{result: reconcile.Result{Fetched: 4, Inserted: 2}}
	s, c := newTestScheduler(r)

	st := s.Status()
	assert.True(t, st.LastAttempted.IsZero())
	assert.True(t, st.LastSuccessful.IsZero())

	require.True(t, s.RequestSync(false))
	s.Wait()
	st = s.Status()
	assert.Equal(t, c.Now(), st.LastAttempted)
	assert.Equal(t, c.Now(), st.LastSuccessful)
	assert.NoError(t, st.LastError)
	assert.Equal(t, 2, st.LastResult.Inserted)
	assert.NotEmpty(t, st.RunID)
	firstRun := st.RunID
	okAt := st.LastSuccessful

	c.Advance(time.Minute)
	r.mu.Lock()
	r.err = &mailbox.UnavailableError{Provider: "fake", Op: "list", Err: errors.New("timeout")}
	r.mu.Unlock()

	require.True(t, s.RequestSync(false))
	s.Wait()
	st = s.Status()
	assert.Equal(t, c.Now(), st.LastAttempted)
	assert.Equal(t, okAt, st.LastSuccessful, "failed pass keeps the last success")
	assert.True(t, mailbox.IsRemoteUnavailable(st.LastError))
	assert.False(t, st.AuthRequired)
	assert.NotEqual(t, firstRun, st.RunID)
	assert.Equal(t, 2, st.LastResult.Inserted, "failed pass keeps the last result")
}

func TestAuthRequired(t *testing.T) {
	r := &fakeRunner{err: &mailbox.AuthError{Provider: "fake", Message: "no token"}}
	s, c := newTestScheduler(r)

	require.True(t, s.RequestSync(true))
	s.Wait()
	assert.True(t, s.Status().AuthRequired)

	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()
	c.Advance(time.Minute)

	require.True(t, s.RequestSync(false))
	s.Wait()
	assert.False(t, s.Status().AuthRequired)
}

func TestRetriableFailure(t *testing.T) {
	r := &fakeRunner{err: &mailbox.UnavailableError{Provider: "fake", Op: "list", Retriable: true, Err: errors.New("503")}}
	s, c := newTestScheduler(r)

	require.True(t, s.RequestSync(false))
	s.Wait()
	st := s.Status()
	assert.True(t, st.Retriable)
	assert.False(t, st.AuthRequired)

	// A failed pass still starts the interval.
	c.Advance(10 * time.Second)
	assert.False(t, s.RequestSync(false))

	r.mu.Lock()
	r.err = &mailbox.UnavailableError{Provider: "fake", Op: "list", Err: errors.New("bad request")}
	r.mu.Unlock()
	c.Advance(10 * time.Second)
	require.True(t, s.RequestSync(false))
	s.Wait()
	assert.False(t, s.Status().Retriable)

	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()
	require.True(t, s.RequestSync(true))
	s.Wait()
	st = s.Status()
	assert.False(t, st.Retriable)
	assert.NoError(t, st.LastError)
}

func TestPanicIsRecovered(t *testing.T) {
	r := &fakeRunner{panicV: "kaboom"}
	s, _ := newTestScheduler(r)

	require.True(t, s.RequestSync(true))
	s.Wait()

	st := s.Status()
	assert.False(t, st.Running)
	require.Error(t, st.LastError)
	assert.Contains(t, st.LastError.Error(), "kaboom")

	r.mu.Lock()
	r.panicV = nil
	r.mu.Unlock()
	assert.True(t, s.RequestSync(true), "scheduler is usable after a panic")
	s.Wait()
	assert.NoError(t, s.Status().LastError)
}

func TestStartAndStop(t *testing.T) {
	r := &fakeRunner{}
	s := New(r, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // second call is a no-op

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	n := r.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, r.calls.Load(), "no passes after Stop")
	assert.False(t, r.overlap.Load())
}

func TestNewDefaultsInterval(t *testing.T) {
	s := New(&fakeRunner{}, 0, zap.NewNop())
	assert.Equal(t, DefaultInterval, s.interval)
}

func TestWaitForNextPass(t *testing.T) {
	r := &fakeRunner{result: reconcile.Result{Inserted: 3}}
	s, c := newTestScheduler(r)

	require.True(t, s.RequestSync(true))
	s.Wait()
	c.Advance(time.Minute)
	require.True(t, s.RequestSync(true))
	s.Wait()

	// Only the latest pass is kept for a slow listener.
	msg := s.WaitForNextPass()()
	done, ok := msg.(PassDoneMsg)
	require.True(t, ok)
	assert.Equal(t, c.Now(), done.Status.LastAttempted)
	assert.Equal(t, 3, done.Status.LastResult.Inserted)

	select {
	case <-s.done:
		t.Fatal("stale pass status left in the channel")
	default:
	}
}
