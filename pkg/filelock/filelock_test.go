package filelock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMutex(t *testing.T, path string, opts Options) *Mutex {
	t.Helper()
	m, err := New(path, opts)
	require.NoError(t, err)
	return m
}

func TestMutexLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	m := newMutex(t, path, Options{})

	require.NoError(t, m.Lock(context.Background()))
	assert.True(t, m.Held())
	assert.FileExists(t, path+Suffix)

	// the protected file itself is never created by locking
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, m.Unlock())
	assert.False(t, m.Held())
	assert.ErrorIs(t, m.Unlock(), ErrNotHeld)
}

func TestTryLockWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	first := newMutex(t, path, Options{})
	second := newMutex(t, path, Options{})

	require.NoError(t, first.Lock(context.Background()))
	assert.ErrorIs(t, second.TryLock(), ErrLocked)

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.json")
	holder := newMutex(t, path, Options{})
	require.NoError(t, holder.Lock(context.Background()))
	defer holder.Unlock()

	waiter := newMutex(t, path, Options{Timeout: 30 * time.Millisecond})
	err := waiter.Lock(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, waiter.Held())
}

func TestLockHonoursCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.json")
	holder := newMutex(t, path, Options{})
	require.NoError(t, holder.Lock(context.Background()))
	defer holder.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newMutex(t, path, Options{}).Lock(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Lock did not return after cancellation")
	}
}

func TestMutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := New(path, Options{})
			if !assert.NoError(t, err) {
				return
			}
			if !assert.NoError(t, m.Lock(context.Background())) {
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			counter++
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, m.Unlock())
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two holders were inside the critical section")
	assert.Equal(t, 16, counter)
}

func TestOnAcquireReportsWait(t *testing.T) {
	var got string
	m := newMutex(t, filepath.Join(t.TempDir(), "x.json"), Options{
		OnAcquire: func(path string, waited time.Duration) {
			got = path
			assert.GreaterOrEqual(t, waited, time.Duration(0))
		},
	})
	require.NoError(t, m.Lock(context.Background()))
	defer m.Unlock()
	assert.Equal(t, m.Path(), got)
}

func TestOrder(t *testing.T) {
	dir := t.TempDir()
	got, err := Order(
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, ".", "b.json"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, got)
}

func TestAcquireAll(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	set, err := AcquireAll(context.Background(), Options{}, b, a)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, set.Paths())

	assert.ErrorIs(t, newMutex(t, a, Options{}).TryLock(), ErrLocked)
	assert.ErrorIs(t, newMutex(t, b, Options{}).TryLock(), ErrLocked)

	require.NoError(t, set.Release())
	require.NoError(t, set.Release())

	for _, p := range []string{a, b} {
		m := newMutex(t, p, Options{})
		require.NoError(t, m.TryLock())
		require.NoError(t, m.Unlock())
	}
}

func TestAcquireAllRollsBackPartialSet(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	c := filepath.Join(dir, "c.json")

	blocker := newMutex(t, b, Options{})
	require.NoError(t, blocker.Lock(context.Background()))

	_, err := AcquireAll(context.Background(), Options{Timeout: 20 * time.Millisecond}, a, b, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// a was taken before b blocked and must have been released
	ma := newMutex(t, a, Options{})
	require.NoError(t, ma.TryLock())
	require.NoError(t, ma.Unlock())

	require.NoError(t, blocker.Unlock())
}

func TestDisjointSetsDoNotBlock(t *testing.T) {
	dir := t.TempDir()
	held, err := AcquireAll(context.Background(), Options{}, filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	defer held.Release()

	other, err := AcquireAll(context.Background(), Options{Timeout: 50 * time.Millisecond},
		filepath.Join(dir, "entities.json"), filepath.Join(dir, "clusters.json"))
	require.NoError(t, err)
	require.NoError(t, other.Release())
}
