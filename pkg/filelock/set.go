package filelock

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
)

// Set is a group of locks acquired together in a fixed order.
type Set struct {
	held []*Mutex
}

// Order returns the canonical acquisition order for paths: absolute,
// cleaned, deduplicated and sorted. Every caller locking overlapping sets
// goes through this order, which rules out lock-order deadlocks.
func Order(paths ...string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out = append(out, filepath.Clean(abs))
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// AcquireAll locks every path in canonical order. If any acquisition fails
// the locks already taken are released, in reverse order, before the error
// is returned.
func AcquireAll(ctx context.Context, opts Options, paths ...string) (*Set, error) {
	ordered, err := Order(paths...)
	if err != nil {
		return nil, err
	}

	set := &Set{held: make([]*Mutex, 0, len(ordered))}
	for _, p := range ordered {
		m, err := New(p, opts)
		if err != nil {
			return nil, errors.Join(err, set.Release())
		}
		if err := m.Lock(ctx); err != nil {
			return nil, errors.Join(err, set.Release())
		}
		set.held = append(set.held, m)
	}
	return set, nil
}

// Paths returns the locked paths in acquisition order.
func (s *Set) Paths() []string {
	out := make([]string, len(s.held))
	for i, m := range s.held {
		out[i] = m.Path()
	}
	return out
}

// Release unlocks every held lock in reverse acquisition order. It keeps
// going after a failure and returns the joined errors. Calling Release
// again is a no-op.
func (s *Set) Release() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.held) - 1; i >= 0; i-- {
		if err := s.held[i].Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	s.held = nil
	return errors.Join(errs...)
}
