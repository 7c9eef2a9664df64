package supervisor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
)

// ShutdownQueue decouples signal delivery from shutdown work. Signal
// handling only enqueues; a single consumer started with Run performs the
// shutdown exactly once. Signals after the first are logged and dropped.
type ShutdownQueue struct {
	ch        chan os.Signal
	requested atomic.Bool
	logger    *slog.Logger
}

// NewShutdownQueue creates an empty queue.
func NewShutdownQueue(logger *slog.Logger) *ShutdownQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownQueue{
		ch:     make(chan os.Signal, 1),
		logger: logger,
	}
}

// Notify enqueues a shutdown request. It never blocks.
func (q *ShutdownQueue) Notify(sig os.Signal) {
	if !q.requested.CompareAndSwap(false, true) {
		q.logger.Info("shutdown already in progress, ignoring signal", "signal", sig)
		return
	}
	select {
	case q.ch <- sig:
	default:
	}
}

// Requested reports whether a shutdown has been enqueued.
func (q *ShutdownQueue) Requested() bool {
	return q.requested.Load()
}

// Run waits for the first shutdown request and calls fn with its signal.
// It returns false without calling fn if ctx ends first.
func (q *ShutdownQueue) Run(ctx context.Context, fn func(os.Signal)) bool {
	select {
	case sig := <-q.ch:
		fn(sig)
		return true
	case <-ctx.Done():
		return false
	}
}

// Watch forwards the given OS signals into the queue until ctx ends or the
// returned stop function is called.
func (q *ShutdownQueue) Watch(ctx context.Context, sigs ...os.Signal) (stop func()) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, sigs...)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				q.Notify(sig)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		cancel()
	}
}
