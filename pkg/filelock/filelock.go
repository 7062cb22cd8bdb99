package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Suffix is appended to a protected path to form its lock file.
const Suffix = ".lock"

var (
	// ErrLocked is returned by TryLock when another holder owns the lock.
	ErrLocked = errors.New("filelock: lock held elsewhere")

	// ErrNotHeld is returned by Unlock on a mutex that is not locked.
	ErrNotHeld = errors.New("filelock: not held")
)

const (
	defaultPollInterval    = 2 * time.Millisecond
	defaultMaxPollInterval = 100 * time.Millisecond
)

// Options tune lock acquisition.
type Options struct {
	// Timeout bounds a single acquisition. Zero waits until ctx is done.
	Timeout time.Duration

	// PollInterval is the first retry delay while another process holds
	// the OS lock. It doubles up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	// OnAcquire, if set, is called after each lock is obtained with the
	// time spent waiting for it.
	OnAcquire func(path string, waited time.Duration)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.MaxPollInterval < o.PollInterval {
		o.MaxPollInterval = defaultMaxPollInterval
		if o.MaxPollInterval < o.PollInterval {
			o.MaxPollInterval = o.PollInterval
		}
	}
	return o
}

// Mutex is an exclusive lock on one protected path. A Mutex is not
// reentrant; use one Mutex per critical section.
type Mutex struct {
	path string // protected file, cleaned and absolute
	opts Options

	mu   sync.Mutex
	slot *slot
	file *os.File
}

// New returns an unlocked Mutex guarding path.
func New(path string, opts Options) (*Mutex, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filelock: resolve %s: %w", path, err)
	}
	return &Mutex{path: filepath.Clean(abs), opts: opts.withDefaults()}, nil
}

// Path returns the protected file path.
func (m *Mutex) Path() string { return m.path }

// LockPath returns the sidecar lock file path.
func (m *Mutex) LockPath() string { return m.path + Suffix }

// Lock blocks until the lock is held, ctx is done or Options.Timeout
// elapses. On error nothing is held.
func (m *Mutex) Lock(ctx context.Context) error {
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	s := acquireSlot(m.path)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		releaseSlot(m.path, s, false)
		return fmt.Errorf("filelock: wait for %s: %w", m.path, ctx.Err())
	}

	f, err := openLockFile(m.LockPath())
	if err != nil {
		releaseSlot(m.path, s, true)
		return err
	}

	delay := m.opts.PollInterval
	for {
		ok, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			releaseSlot(m.path, s, true)
			return fmt.Errorf("filelock: lock %s: %w", m.LockPath(), err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			_ = f.Close()
			releaseSlot(m.path, s, true)
			return fmt.Errorf("filelock: wait for %s: %w", m.path, ctx.Err())
		}
		delay = min(delay*2, m.opts.MaxPollInterval)
	}

	m.mu.Lock()
	m.slot, m.file = s, f
	m.mu.Unlock()

	if m.opts.OnAcquire != nil {
		m.opts.OnAcquire(m.path, time.Since(start))
	}
	return nil
}

// TryLock acquires the lock without waiting. It returns ErrLocked when the
// path is held by this or another process.
func (m *Mutex) TryLock() error {
	s := acquireSlot(m.path)
	select {
	case s.ch <- struct{}{}:
	default:
		releaseSlot(m.path, s, false)
		return ErrLocked
	}

	f, err := openLockFile(m.LockPath())
	if err != nil {
		releaseSlot(m.path, s, true)
		return err
	}
	ok, err := tryLock(f)
	if err != nil || !ok {
		_ = f.Close()
		releaseSlot(m.path, s, true)
		if err != nil {
			return fmt.Errorf("filelock: lock %s: %w", m.LockPath(), err)
		}
		return ErrLocked
	}

	m.mu.Lock()
	m.slot, m.file = s, f
	m.mu.Unlock()
	return nil
}

// Unlock releases the OS lock and the in-process slot. The slot is released
// even when the OS unlock fails, since closing the file drops the lock too.
func (m *Mutex) Unlock() error {
	m.mu.Lock()
	s, f := m.slot, m.file
	m.slot, m.file = nil, nil
	m.mu.Unlock()

	if f == nil {
		return ErrNotHeld
	}

	err := unlock(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	releaseSlot(m.path, s, true)
	if err != nil {
		return fmt.Errorf("filelock: unlock %s: %w", m.LockPath(), err)
	}
	return nil
}

// Held reports whether this Mutex currently owns its lock.
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != nil
}

func openLockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filelock: open %s: %w", path, err)
	}
	return f, nil
}

// slot serializes holders of the same path inside this process.
type slot struct {
	ch   chan struct{}
	refs int
}

var slots = struct {
	sync.Mutex
	m map[string]*slot
}{m: make(map[string]*slot)}

func acquireSlot(path string) *slot {
	slots.Lock()
	defer slots.Unlock()
	s, ok := slots.m[path]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		slots.m[path] = s
	}
	s.refs++
	return s
}

// releaseSlot drops a reference, freeing the slot token first when held.
func releaseSlot(path string, s *slot, held bool) {
	if held {
		<-s.ch
	}
	slots.Lock()
	defer slots.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(slots.m, path)
	}
}
