package scheduler

import (
	"context"
	"sync"
	"time"

	"deltadeck/internal/logger"
)

// Task is a cancellable scheduled-task handle. Both the agent's analysis
// loop and the take-profit poll run behind one, so a caller can always
// stop a loop without reaching into raw timers.
type Task interface {
	Stop()
	Running() bool
}

// IntervalScheduler invokes a task at a fixed interval until stopped or
// its context is cancelled. The clock is injectable for tests.
type IntervalScheduler struct {
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

type intervalTask struct {
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func (t *intervalTask) Stop() {
	t.cancel()
	<-t.done
}

func (t *intervalTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start launches the loop on its own goroutine and returns a handle.
// A nil or non-positive configuration yields a no-op task rather than a
// panic; the caller logs and carries on.
func (s *IntervalScheduler) Start(task func()) Task {
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(s.ctx)
	handle := &intervalTask{cancel: cancel, done: done}

	if task == nil || s.Interval <= 0 {
		logger.Warnf("IntervalScheduler: invalid task or interval=%s, not scheduling", s.Interval)
		close(done)
		return handle
	}

	handle.mu.Lock()
	handle.running = true
	handle.mu.Unlock()

	go func() {
		defer func() {
			handle.mu.Lock()
			handle.running = false
			handle.mu.Unlock()
			close(done)
		}()

		if s.RunImmediately {
			task()
		}
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
	return handle
}
