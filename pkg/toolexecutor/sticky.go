package toolexecutor

import (
	"context"
	"sync"

	"github.com/harun/ouro/internal/observability"
	"github.com/rs/zerolog"
)

// stickyJob is one unit of work submitted to the sticky lane.
type stickyJob struct {
	ctx    context.Context
	run    func(ctx context.Context) (string, error)
	result chan stickyResult
}

type stickyResult struct {
	output string
	err    error
}

// StickyLane runs stateful tool calls on a single persistent worker so that
// session state (a live browser, an open connection) survives between calls.
// When a call times out the lane is torn down and replaced: the abandoned
// call keeps its goroutine until its context fires, the onReset hook discards
// the session state it was holding, and new calls go to a fresh worker rather
// than queueing behind a wedged one.
type StickyLane struct {
	mu      sync.Mutex
	jobs    chan stickyJob
	cancel  context.CancelFunc
	onReset func()
	closed  bool
	logger  zerolog.Logger
}

// NewStickyLane starts the lane's worker goroutine.
func NewStickyLane(logger zerolog.Logger) *StickyLane {
	l := &StickyLane{logger: logger.With().Str("component", "sticky_lane").Logger()}
	l.startLocked()
	return l
}

func (l *StickyLane) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan stickyJob)
	l.jobs = jobs
	l.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-jobs:
				if !ok {
					return
				}
				out, err := job.run(job.ctx)
				select {
				case job.result <- stickyResult{output: out, err: err}:
				case <-job.ctx.Done():
				}
			}
		}
	}()
}

// SetOnReset installs a hook invoked whenever the lane replaces its worker.
// Stateful tools register their session teardown here so a reset discards
// the wedged session, not just the goroutine serving it.
func (l *StickyLane) SetOnReset(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReset = fn
}

// Submit runs fn on the lane's worker and waits for completion or ctx
// expiry. On expiry the worker is abandoned and the lane reset so the next
// stateful call starts clean.
func (l *StickyLane) Submit(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", context.Canceled
	}
	jobs := l.jobs
	l.mu.Unlock()

	job := stickyJob{ctx: ctx, run: fn, result: make(chan stickyResult, 1)}

	select {
	case jobs <- job:
	case <-ctx.Done():
		l.reset()
		return "", ctx.Err()
	}

	select {
	case res := <-job.result:
		return res.output, res.err
	case <-ctx.Done():
		l.reset()
		return "", ctx.Err()
	}
}

// reset abandons the current worker, starts a fresh one, and tears down the
// session state via the onReset hook. The hook runs outside the lock so a
// slow teardown does not block concurrent submissions.
func (l *StickyLane) reset() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.cancel()
	l.startLocked()
	hook := l.onReset
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
	observability.RecordStickyLaneReset()
	l.logger.Warn().Msg("sticky lane reset after timeout")
}

// Close stops the worker. The lane cannot be reused afterwards.
func (l *StickyLane) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.cancel()
}
