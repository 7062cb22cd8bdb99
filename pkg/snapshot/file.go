package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/models"
)

// Repository is the in-memory state persisted in one snapshot file.
//
// Decode and Reset replace the state in place so that holders of the
// repository keep a valid reference across reloads.
type Repository interface {
	Encode() ([]byte, error)
	Decode(data []byte) error
	Reset()
	Dirty() bool
	MarkClean()
}

// CriticalSection defers process termination while a snapshot is being
// replaced. Enter blocks while shutdown is in progress and returns the
// function that leaves the section.
type CriticalSection interface {
	Enter() (leave func())
}

// Observer receives snapshot I/O outcomes, typically for metrics.
type Observer interface {
	ObserveLoad(name string, d time.Duration, err error)
	ObserveWrite(name string, bytes int, d time.Duration, err error)
}

// Option configures a File.
type Option func(*File)

// WithCriticalSection guards every atomic replace with cs.
func WithCriticalSection(cs CriticalSection) Option {
	return func(f *File) { f.critical = cs }
}

// WithObserver reports loads and writes to o.
func WithObserver(o Observer) Option {
	return func(f *File) { f.observer = o }
}

// WithPerm sets the permission of written snapshots (default 0644).
func WithPerm(perm os.FileMode) Option {
	return func(f *File) { f.perm = perm }
}

// File tracks one repository and its backing snapshot.
//
// The staleness check compares the file's modification time with the one
// remembered after the last load or write. Timestamps alone cannot separate
// two writes within the filesystem's timestamp resolution, so the check also
// compares file identity and size: every save renames a fresh file into
// place, which changes the identity. An in-place rewrite of equal size
// within one timestamp tick remains invisible until the file changes again.
// Watch hints (see Watcher) narrow that window further.
//
// File methods are safe for concurrent use, but Repository mutations must
// happen under the file lock held by the request guard.
type File struct {
	name     string
	path     string
	repo     Repository
	perm     os.FileMode
	critical CriticalSection
	observer Observer

	mu     sync.Mutex
	loaded bool
	mtime  time.Time   // zero until the file has been loaded or written
	info   os.FileInfo // stat after the last load or write, nil while mtime is zero
	hinted atomic.Bool
}

// NewFile binds repo to the snapshot at path. Nothing is read until the
// first Refresh.
func NewFile(name, path string, repo Repository, opts ...Option) *File {
	f := &File{name: name, path: filepath.Clean(path), repo: repo, perm: 0o644}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the repository name (entities, clusters, users).
func (f *File) Name() string { return f.name }

// Path returns the snapshot path.
func (f *File) Path() string { return f.path }

// Repository returns the tracked repository.
func (f *File) Repository() Repository { return f.repo }

// Mtime returns the remembered modification time and whether it is set.
func (f *File) Mtime() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mtime, !f.mtime.IsZero()
}

// Hint marks the file as possibly changed by another process. The next
// Refresh reloads it regardless of timestamps.
func (f *File) Hint() { f.hinted.Store(true) }

// Invalidate forgets the in-memory state; the next Refresh reloads from disk.
func (f *File) Invalidate() {
	f.mu.Lock()
	f.loaded = false
	f.mu.Unlock()
}

// Refresh reloads the repository if it was never loaded or the snapshot on
// disk is newer than the remembered modification time. An absent snapshot
// yields an empty repository and leaves the remembered time unset.
func (f *File) Refresh(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f.resetAbsent(ctx), nil
	}
	if err != nil {
		return false, models.IOError("stat snapshot", f.path, err)
	}

	hinted := f.hinted.Swap(false)
	if f.loaded && !f.stale(info) && !hinted {
		return false, nil
	}

	start := time.Now()
	err = f.load()
	if f.observer != nil {
		f.observer.ObserveLoad(f.name, time.Since(start), err)
	}
	if err != nil {
		return false, err
	}
	logger.DebugCtx(ctx, "snapshot reloaded", logger.File(f.path), logger.KeyMtime, f.mtime, logger.DurationMs(logger.Duration(start)))
	return true, nil
}

// resetAbsent handles a missing snapshot. A repository that was never
// written keeps its in-memory state once initialised; one whose file
// vanished after a load is emptied.
func (f *File) resetAbsent(ctx context.Context) bool {
	f.hinted.Store(false)
	if f.loaded && f.mtime.IsZero() {
		return false
	}
	if f.loaded {
		logger.WarnCtx(ctx, "snapshot disappeared, starting empty", logger.File(f.path))
	}
	f.repo.Reset()
	f.loaded = true
	f.mtime, f.info = time.Time{}, nil
	return true
}

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return models.IOError("read snapshot", f.path, err)
	}
	if err := f.repo.Decode(data); err != nil {
		return models.IOError("decode snapshot", f.path, err)
	}
	info, err := os.Stat(f.path)
	if err != nil {
		return models.IOError("stat snapshot", f.path, err)
	}
	f.loaded = true
	f.mtime, f.info = info.ModTime(), info
	return nil
}

// stale reports whether cur differs from the remembered stat.
func (f *File) stale(cur os.FileInfo) bool {
	if f.info == nil {
		return true
	}
	return cur.ModTime().After(f.mtime) || cur.Size() != f.info.Size() || !os.SameFile(cur, f.info)
}

// Persist writes the repository if it has unsaved changes.
func (f *File) Persist(ctx context.Context) error {
	if !f.repo.Dirty() {
		return nil
	}
	return f.Save(ctx)
}

// Save unconditionally writes the repository with an atomic replace and
// remembers the new modification time. On failure the in-memory state and
// its dirty flag are kept, so a later Save retries the same content.
func (f *File) Save(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.critical != nil {
		leave := f.critical.Enter()
		defer leave()
	}

	start := time.Now()
	data, err := f.repo.Encode()
	if err != nil {
		return models.IOError("encode snapshot", f.path, err)
	}

	info, err := replace(f.path, data, f.perm)
	if f.observer != nil {
		f.observer.ObserveWrite(f.name, len(data), time.Since(start), err)
	}
	if err != nil {
		logger.ErrorCtx(ctx, "snapshot write failed", logger.File(f.path), logger.Err(err))
		return models.IOError("write snapshot", f.path, err)
	}

	f.mtime, f.info = info.ModTime(), info
	f.loaded = true
	f.repo.MarkClean()
	logger.DebugCtx(ctx, "snapshot written", logger.File(f.path), logger.KeyBytes, len(data), logger.DurationMs(logger.Duration(start)))
	return nil
}

// ChangedOnDisk reports whether the snapshot was modified by someone else
// since it was last loaded or written.
func (f *File) ChangedOnDisk() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return !f.mtime.IsZero(), nil
	}
	if err != nil {
		return false, models.IOError("stat snapshot", f.path, err)
	}
	return f.stale(info), nil
}
