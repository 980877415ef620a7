package document

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Loop serializes all document work through a single goroutine.
//
// goja runtimes are not goroutine-safe, so every operation that touches the
// document scope is marshaled onto the loop. The queue is unbounded so a task
// running on the loop can Post follow-up work without deadlocking.
//
// Usage:
//
//	loop := NewLoop(logger)
//	go loop.Run(ctx)
//	defer loop.Close()
//
//	_ = loop.Post(func() { ... })
type Loop struct {
	logger *zap.Logger

	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}

	closed    atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
}

// NewLoop creates a loop. Run must be called to start processing.
func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run processes tasks until the context is cancelled or Close is called.
// Pending tasks are discarded on exit.
func (l *Loop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	defer close(l.stopped)
	defer l.Close()

	for {
		select {
		case <-ctx.Done():
			l.discard()
			return
		case <-l.done:
			l.discard()
			return
		case <-l.wake:
			for _, task := range l.take() {
				if l.closed.Load() {
					break
				}
				l.runTask(task)
			}
		}
	}
}

// take swaps out the pending batch.
func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.tasks
	l.tasks = nil
	return batch
}

func (l *Loop) discard() {
	if n := len(l.take()); n > 0 {
		l.logger.Debug("discarding queued tasks", zap.Int("count", n))
	}
}

// runTask runs a single task with panic recovery.
func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("document task panicked", zap.Any("panic", r))
		}
	}()
	task()
}

// Post queues a task without waiting for it.
func (l *Loop) Post(task func()) error {
	if task == nil {
		return nil
	}
	if l.closed.Load() {
		return ErrLoopClosed
	}

	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop and waits for its result.
// It must not be called from a task already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	err := l.Post(func() {
		var taskErr error
		defer func() {
			if r := recover(); r != nil {
				taskErr = fmt.Errorf("document task panicked: %v", r)
			}
			result <- taskErr
		}()
		taskErr = fn()
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopClosed
		}
	case err := <-result:
		return err
	}
}

// Close stops the loop. Queued tasks that have not started are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// IsClosed returns true if the loop has been closed.
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}
