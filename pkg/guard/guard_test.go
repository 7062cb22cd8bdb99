package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/filelock"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/snapshot"
)

// counterRepo is a Repository holding a single integer.
type counterRepo struct {
	N     int `json:"n"`
	dirty bool

	failEncode bool
}

func (r *counterRepo) Encode() ([]byte, error) {
	if r.failEncode {
		return nil, errors.New("encode refused")
	}
	return json.Marshal(r)
}
func (r *counterRepo) Decode(data []byte) error {
	r.N, r.dirty = 0, false
	return json.Unmarshal(data, r)
}
func (r *counterRepo) Reset()      { r.N, r.dirty = 0, false }
func (r *counterRepo) Dirty() bool { return r.dirty }
func (r *counterRepo) MarkClean()  { r.dirty = false }
func (r *counterRepo) inc()        { r.N++; r.dirty = true }

func newCounter(t *testing.T, path string) (*counterRepo, *snapshot.File) {
	t.Helper()
	repo := &counterRepo{}
	return repo, snapshot.NewFile(filepath.Base(path), path, repo)
}

func onDisk(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r counterRepo
	require.NoError(t, json.Unmarshal(data, &r))
	return r.N
}

func TestDo_PersistsOnSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	repo, f := newCounter(t, path)
	g := New([]*snapshot.File{f})

	err := g.Do(t.Context(), func(context.Context) error {
		repo.inc()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, onDisk(t, path))
	assert.False(t, repo.Dirty())
}

func TestDo_ReadOnlyDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	_, f := newCounter(t, path)
	g := New([]*snapshot.File{f})

	require.NoError(t, g.Do(t.Context(), func(context.Context) error { return nil }))
	assert.NoFileExists(t, path)
}

func TestDo_HandlerErrorDropsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	repo, f := newCounter(t, path)
	g := New([]*snapshot.File{f})
	ctx := t.Context()

	require.NoError(t, g.Do(ctx, func(context.Context) error { repo.inc(); return nil }))

	boom := errors.New("boom")
	err := g.Do(ctx, func(context.Context) error {
		repo.inc()
		repo.inc()
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, onDisk(t, path))

	// the next request sees the persisted state, not the half-applied one
	require.NoError(t, g.Do(ctx, func(context.Context) error {
		assert.Equal(t, 1, repo.N)
		return nil
	}))
}

func TestDo_PanicReleasesLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	repo, f := newCounter(t, path)
	g := New([]*snapshot.File{f})
	ctx := t.Context()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = g.Do(ctx, func(context.Context) error {
			repo.inc()
			panic("kaboom")
		})
	})
	assert.NoFileExists(t, path)

	m, err := filelock.New(path, filelock.Options{})
	require.NoError(t, err)
	require.NoError(t, m.TryLock(), "lock leaked after panic")
	require.NoError(t, m.Unlock())

	require.NoError(t, g.Do(ctx, func(context.Context) error {
		assert.Zero(t, repo.N)
		return nil
	}))
}

func TestDo_LockTimeoutSkipsHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	_, f := newCounter(t, path)
	g := New([]*snapshot.File{f}, WithLockOptions(filelock.Options{Timeout: 50 * time.Millisecond}))

	holder, err := filelock.New(path, filelock.Options{})
	require.NoError(t, err)
	require.NoError(t, holder.Lock(t.Context()))
	defer holder.Unlock()

	ran := false
	err = g.Do(t.Context(), func(context.Context) error { ran = true; return nil })
	require.ErrorIs(t, err, models.ErrIOFailure)
	assert.False(t, ran)
}

func TestDo_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	_, f := newCounter(t, path)
	g := New([]*snapshot.File{f})

	holder, err := filelock.New(path, filelock.Options{})
	require.NoError(t, err)
	require.NoError(t, holder.Lock(t.Context()))
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	err = g.Do(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, models.ErrIOFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Two guards sharing the snapshot objects, as the entity and cluster
// services of one process do, never lose increments.
func TestDo_SharedFilesSerialize(t *testing.T) {
	dir := t.TempDir()
	entities, ef := newCounter(t, filepath.Join(dir, "entity_repository.json"))
	clusters, cf := newCounter(t, filepath.Join(dir, "cluster_repository.json"))

	entityGuard := New([]*snapshot.File{ef})
	clusterGuard := New([]*snapshot.File{cf, ef})

	const rounds = 50
	var wg sync.WaitGroup
	for range rounds {
		wg.Go(func() {
			assert.NoError(t, entityGuard.Do(t.Context(), func(context.Context) error {
				entities.inc()
				return nil
			}))
		})
		wg.Go(func() {
			assert.NoError(t, clusterGuard.Do(t.Context(), func(context.Context) error {
				entities.inc()
				clusters.inc()
				return nil
			}))
		})
	}
	wg.Wait()

	assert.Equal(t, 2*rounds, onDisk(t, ef.Path()))
	assert.Equal(t, rounds, onDisk(t, cf.Path()))
}

// Separate snapshot objects over one path behave like separate processes:
// each reloads what the other wrote.
func TestDo_IndependentViewsConverge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_repository.json")
	a, fa := newCounter(t, path)
	b, fb := newCounter(t, path)
	ga, gb := New([]*snapshot.File{fa}), New([]*snapshot.File{fb})
	ctx := t.Context()

	for range 20 {
		require.NoError(t, ga.Do(ctx, func(context.Context) error { a.inc(); return nil }))
		require.NoError(t, gb.Do(ctx, func(context.Context) error { b.inc(); return nil }))
	}
	assert.Equal(t, 40, onDisk(t, path))
}

func TestDo_DisjointFilesRunInParallel(t *testing.T) {
	dir := t.TempDir()
	_, ef := newCounter(t, filepath.Join(dir, "entity_repository.json"))
	_, uf := newCounter(t, filepath.Join(dir, "user_repository.json"))
	entityGuard, userGuard := New([]*snapshot.File{ef}), New([]*snapshot.File{uf})

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- entityGuard.Do(t.Context(), func(context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, userGuard.Do(ctx, func(context.Context) error { return nil }),
		"disjoint guard blocked behind a held lock")

	close(release)
	require.NoError(t, <-done)
}

func TestDo_PersistFailureKeepsDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	repo, f := newCounter(t, path)
	g := New([]*snapshot.File{f})
	ctx := t.Context()

	repo.failEncode = true
	err := g.Do(ctx, func(context.Context) error { repo.inc(); return nil })
	require.ErrorIs(t, err, models.ErrIOFailure)
	assert.True(t, repo.Dirty())
	assert.NoFileExists(t, path)

	// the next successful request writes the retained change
	repo.failEncode = false
	require.NoError(t, g.Do(ctx, func(context.Context) error { repo.inc(); return nil }))
	assert.Equal(t, 2, onDisk(t, path))
}

type recorded struct {
	mu       sync.Mutex
	outcomes []string
	waits    int
}

func (r *recorded) ObserveLockWait(string, time.Duration) {
	r.mu.Lock()
	r.waits++
	r.mu.Unlock()
}

func (r *recorded) ObserveGuard(outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func (r *recorded) ObserveLoad(string, time.Duration, error)       {}
func (r *recorded) ObserveWrite(string, int, time.Duration, error) {}
func (r *recorded) ObserveRequest(string, string, string, int, time.Duration) {
}

func TestDo_RecordsOutcomes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	_, f := newCounter(t, path)
	rec := &recorded{}
	g := New([]*snapshot.File{f}, WithRecorder(rec))
	ctx := t.Context()

	require.NoError(t, g.Do(ctx, func(context.Context) error { return nil }))
	require.Error(t, g.Do(ctx, func(context.Context) error { return errors.New("x") }))

	assert.Equal(t, []string{"ok", "handler_error"}, rec.outcomes)
	assert.Equal(t, 2, rec.waits)
}

func TestMiddleware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster_repository.json")
	repo, f := newCounter(t, path)
	g := New([]*snapshot.File{f})

	var guardErr error
	onError := func(w http.ResponseWriter, _ *http.Request, err error) {
		guardErr = err
		http.Error(w, "guard failed", http.StatusInternalServerError)
	}

	t.Run("SuccessPersistsAndFlushes", func(t *testing.T) {
		h := Middleware(g, onError)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			repo.inc()
			w.Header().Set("X-Count", "1")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("created"))
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "created", rec.Body.String())
		assert.Equal(t, "1", rec.Header().Get("X-Count"))
		assert.Equal(t, 1, onDisk(t, path))
	})

	t.Run("ServerErrorDropsChanges", func(t *testing.T) {
		h := Middleware(g, onError)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			repo.inc()
			http.Error(w, "broken", http.StatusInternalServerError)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "broken")
		assert.Nil(t, guardErr)
		assert.Equal(t, 1, onDisk(t, path))
	})

	t.Run("PersistFailureUsesErrorWriter", func(t *testing.T) {
		repo.failEncode = true
		t.Cleanup(func() { repo.failEncode = false })

		h := Middleware(g, onError)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			repo.inc()
			w.WriteHeader(http.StatusOK)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.ErrorIs(t, guardErr, models.ErrIOFailure)
	})
}
