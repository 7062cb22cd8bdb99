// Package guard runs request handlers under the cross-process file locks of
// the snapshots they touch.
//
// For every request the guard:
//  1. locks the snapshot files in canonical order
//  2. reloads any repository whose snapshot changed on disk
//  3. runs the handler against the in-memory repositories
//  4. persists the repositories the handler changed
//  5. releases the locks in reverse order, on every exit path
//
// A handler error or panic skips step 4 and invalidates every repository
// the handler dirtied, so partial in-memory mutations are dropped by the
// next reload instead of leaking into later requests.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/internal/telemetry"
	"github.com/eecworkbench/eec/pkg/filelock"
	"github.com/eecworkbench/eec/pkg/metrics"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/snapshot"
)

// Handler is the work done while the locks are held.
type Handler func(ctx context.Context) error

// Option configures a Guard.
type Option func(*Guard)

// WithLockOptions sets the lock acquisition options (timeout, polling).
func WithLockOptions(opts filelock.Options) Option {
	return func(g *Guard) { g.lockOpts = opts }
}

// WithRecorder reports lock waits and guard outcomes to rec. A nil rec
// disables metrics.
func WithRecorder(rec metrics.Recorder) Option {
	return func(g *Guard) { g.rec = rec }
}

// Guard protects a fixed set of snapshot files.
type Guard struct {
	files    []*snapshot.File
	paths    []string
	lockOpts filelock.Options
	rec      metrics.Recorder
}

// New returns a guard over files. The files are refreshed and persisted in
// the given order; locks are always taken in canonical path order.
func New(files []*snapshot.File, opts ...Option) *Guard {
	g := &Guard{files: files, paths: make([]string, len(files))}
	for i, f := range files {
		g.paths[i] = f.Path()
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rec != nil {
		user := g.lockOpts.OnAcquire
		g.lockOpts.OnAcquire = func(path string, waited time.Duration) {
			g.rec.ObserveLockWait(path, waited)
			if user != nil {
				user(path, waited)
			}
		}
	}
	return g
}

// Files returns the guarded snapshot files.
func (g *Guard) Files() []*snapshot.File { return g.files }

// Do runs fn inside the lock/reload/persist cycle. A panic in fn is
// re-raised after the locks are released.
func (g *Guard) Do(ctx context.Context, fn Handler) (err error) {
	start := time.Now()
	outcome := metrics.OutcomeOK
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGuard, telemetry.Files(g.paths))
	defer func() {
		if g.rec != nil {
			g.rec.ObserveGuard(outcome, time.Since(start))
		}
		span.SetAttributes(telemetry.Outcome(outcome))
		telemetry.EndSpan(span, err)
	}()

	set, err := g.lock(ctx)
	if err != nil {
		outcome = metrics.OutcomeLockFailed
		return err
	}
	defer func() {
		if rerr := set.Release(); rerr != nil {
			logger.ErrorCtx(ctx, "failed to release snapshot locks", logger.Files(g.paths), logger.Err(rerr))
			if err == nil {
				err = models.IOError("release locks", strings.Join(g.paths, ","), rerr)
			}
		}
	}()

	defer func() {
		if p := recover(); p != nil {
			outcome = metrics.OutcomePanic
			g.discard(ctx)
			logger.ErrorCtx(ctx, "handler panicked, dropped unsaved changes", logger.Files(g.paths), "panic", p)
			panic(p)
		}
	}()

	if err := g.refresh(ctx); err != nil {
		outcome = metrics.OutcomeLoadFailed
		return err
	}

	hctx, hspan := telemetry.StartSpan(ctx, telemetry.SpanGuardHandle)
	err = fn(hctx)
	telemetry.EndSpan(hspan, err)
	if err != nil {
		outcome = metrics.OutcomeHandlerErr
		g.discard(ctx)
		return err
	}

	if err := g.persist(ctx); err != nil {
		outcome = metrics.OutcomePersistFail
		return err
	}
	return nil
}

func (g *Guard) lock(ctx context.Context) (*filelock.Set, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGuardLock)
	set, err := filelock.AcquireAll(ctx, g.lockOpts, g.paths...)
	if err != nil {
		err = models.IOError("acquire locks", strings.Join(g.paths, ","), err)
		logger.WarnCtx(ctx, "failed to acquire snapshot locks", logger.Files(g.paths), logger.Err(err))
	}
	telemetry.EndSpan(span, err)
	return set, err
}

func (g *Guard) refresh(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGuardRefresh)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	for _, f := range g.files {
		var reloaded bool
		if reloaded, err = f.Refresh(ctx); err != nil {
			return err
		}
		if reloaded {
			telemetry.AddEvent(ctx, "reloaded", telemetry.Repository(f.Name()))
		}
	}
	return nil
}

// persist writes every dirty repository. A failed write leaves that
// repository dirty so the next successful request retries it.
func (g *Guard) persist(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGuardPersist)
	var errs []error
	for _, f := range g.files {
		if err := f.Persist(ctx); err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", f.Name(), err))
		}
	}
	err := errors.Join(errs...)
	telemetry.EndSpan(span, err)
	return err
}

// discard drops unsaved in-memory changes of every dirty repository.
func (g *Guard) discard(ctx context.Context) {
	for _, f := range g.files {
		if f.Repository().Dirty() {
			f.Invalidate()
			logger.DebugCtx(ctx, "invalidated repository after failed request", logger.File(f.Path()))
		}
	}
}
