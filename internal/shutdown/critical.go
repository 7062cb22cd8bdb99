// Package shutdown coordinates process termination with in-flight snapshot
// writes.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/eecworkbench/eec/internal/logger"
)

// Critical is a critical section around snapshot replaces. Any number of
// writers may be inside at once; Drain waits until none are.
type Critical struct {
	mu sync.RWMutex
}

// Enter marks the start of an atomic write. The returned func leaves the
// section and must be called exactly once.
func (c *Critical) Enter() func() {
	c.mu.RLock()
	return c.mu.RUnlock
}

// Drain blocks until every writer currently inside the section has left.
func (c *Critical) Drain() {
	c.mu.Lock()
	c.mu.Unlock() //nolint:staticcheck // empty critical section used as a barrier
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. A signal
// received while a snapshot is being replaced is acted on only after the
// replace finishes. A second signal exits the process once the section is
// drained.
func NotifyContext(parent context.Context, c *Critical) (context.Context, context.CancelFunc) {
	return notifyContext(parent, c, os.Exit, syscall.SIGINT, syscall.SIGTERM)
}

func notifyContext(parent context.Context, c *Critical, exit func(int), signals ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, signals...)

	stopped := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(stopped)
			cancel()
		})
	}

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Shutdown signal received, waiting for pending snapshot writes", "signal", sig.String())
			c.Drain()
			cancel()
		case <-stopped:
			return
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("Second signal received, forcing exit", "signal", sig.String())
			c.Drain()
			exit(1)
		case <-stopped:
		}
	}()

	return ctx, stop
}
