package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/models"
)

// listRepo is a minimal Repository holding a list of strings.
type listRepo struct {
	Items []string `json:"items"`
	dirty bool
	loads int
}

func (r *listRepo) Encode() ([]byte, error) { return json.Marshal(r) }

func (r *listRepo) Decode(data []byte) error {
	r.Items = nil
	r.dirty = false
	r.loads++
	return json.Unmarshal(data, r)
}

func (r *listRepo) Reset()      { r.Items, r.dirty = []string{}, false }
func (r *listRepo) Dirty() bool { return r.dirty }
func (r *listRepo) MarkClean()  { r.dirty = false }

func (r *listRepo) add(s string) {
	r.Items = append(r.Items, s)
	r.dirty = true
}

type countingSection struct{ entered, left atomic.Int32 }

func (c *countingSection) Enter() func() {
	c.entered.Add(1)
	return func() { c.left.Add(1) }
}

func writeExternal(t *testing.T, path string, items []string, mtime time.Time) {
	t.Helper()
	data, err := json.Marshal(&listRepo{Items: items})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestWriteFile(t *testing.T) {
	t.Run("ReplacesAtomically", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "entity_repository.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"old":true}`), 0o644))

		mtime, err := WriteFile(path, []byte(`{"new":true}`), 0o644)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, `{"new":true}`, string(data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, info.ModTime(), mtime)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary file left behind")
	})

	t.Run("MissingDirectoryFails", func(t *testing.T) {
		_, err := WriteFile(filepath.Join(t.TempDir(), "nope", "x.json"), []byte("{}"), 0o644)
		assert.Error(t, err)
	})

	t.Run("FailedReplaceKeepsTarget", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "clusters.json")
		require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))

		_, err := WriteFile(target, []byte("{}"), 0o644)
		require.Error(t, err)

		info, err := os.Stat(target)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestRefreshAbsentFile(t *testing.T) {
	repo := &listRepo{Items: []string{"stale"}}
	f := NewFile("entities", filepath.Join(t.TempDir(), "entity_repository.json"), repo)

	reloaded, err := f.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Empty(t, repo.Items)

	_, set := f.Mtime()
	assert.False(t, set, "mtime must stay unset until a save")

	// in-memory changes survive while nothing has been written yet
	repo.add("pending")
	reloaded, err = f.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Equal(t, []string{"pending"}, repo.Items)
}

func TestSaveThenRefreshDoesNotReload(t *testing.T) {
	repo := &listRepo{}
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	f := NewFile("entities", path, repo)
	ctx := context.Background()

	_, err := f.Refresh(ctx)
	require.NoError(t, err)
	repo.add("e1")
	require.NoError(t, f.Persist(ctx))
	assert.False(t, repo.Dirty())

	mtime, set := f.Mtime()
	require.True(t, set)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), mtime)

	reloaded, err := f.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Zero(t, repo.loads)
}

func TestRefreshPicksUpNewerFile(t *testing.T) {
	repo := &listRepo{}
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	f := NewFile("entities", path, repo)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeExternal(t, path, []string{"a"}, base)

	reloaded, err := f.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, []string{"a"}, repo.Items)

	writeExternal(t, path, []string{"a", "b"}, base.Add(time.Second))
	reloaded, err = f.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, []string{"a", "b"}, repo.Items)
}

func TestRefreshMissesSameTimestampWrite(t *testing.T) {
	repo := &listRepo{}
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	f := NewFile("entities", path, repo)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeExternal(t, path, []string{"a"}, base)
	_, err := f.Refresh(ctx)
	require.NoError(t, err)

	// an in-place rewrite of equal size on the same timestamp is not detected
	writeExternal(t, path, []string{"b"}, base)
	reloaded, err := f.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Equal(t, []string{"a"}, repo.Items)

	// a hint closes the gap
	f.Hint()
	reloaded, err = f.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, []string{"b"}, repo.Items)
}

func TestRefreshDetectsReplaceOnSameTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	mine := &listRepo{}
	f := NewFile("entities", path, mine)
	mine.add("a")
	require.NoError(t, f.Save(ctx))
	require.NoError(t, os.Chtimes(path, base, base))
	_, err := f.Refresh(ctx)
	require.NoError(t, err)

	// another writer renames a new file of equal size into place and
	// backdates it to the same timestamp
	_, err = WriteFile(path, []byte(`{"items":["b"]}`), 0o644)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(path, base, base))

	reloaded, err := f.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, []string{"b"}, mine.Items)
}

func TestInvalidateForcesReload(t *testing.T) {
	repo := &listRepo{}
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	f := NewFile("entities", path, repo)
	ctx := context.Background()

	_, err := f.Refresh(ctx)
	require.NoError(t, err)
	repo.add("saved")
	require.NoError(t, f.Save(ctx))

	repo.add("half-applied")
	f.Invalidate()

	reloaded, err := f.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, []string{"saved"}, repo.Items)
	assert.False(t, repo.Dirty())
}

func TestCorruptSnapshotIsIOFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFile("entities", path, &listRepo{}).Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrIOFailure)
}

func TestPersistOnlyWhenDirty(t *testing.T) {
	repo := &listRepo{}
	path := filepath.Join(t.TempDir(), "entity_repository.json")
	cs := &countingSection{}
	f := NewFile("entities", path, repo, WithCriticalSection(cs))
	ctx := context.Background()

	require.NoError(t, f.Persist(ctx))
	assert.NoFileExists(t, path)
	assert.Zero(t, cs.entered.Load())

	repo.add("x")
	require.NoError(t, f.Persist(ctx))
	assert.FileExists(t, path)
	assert.Equal(t, int32(1), cs.entered.Load())
	assert.Equal(t, int32(1), cs.left.Load())
}

func TestSaveFailureKeepsDirtyState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "entity_repository.json")
	repo := &listRepo{}
	f := NewFile("entities", path, repo)

	repo.add("x")
	err := f.Save(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIOFailure)
	assert.True(t, repo.Dirty())

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, f.Save(context.Background()))
	assert.False(t, repo.Dirty())
}

type recordingObserver struct {
	loads, writes int
	lastErr       error
}

func (o *recordingObserver) ObserveLoad(string, time.Duration, error) { o.loads++ }

func (o *recordingObserver) ObserveWrite(_ string, _ int, _ time.Duration, err error) {
	o.writes++
	o.lastErr = err
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	repo := &listRepo{}
	path := filepath.Join(t.TempDir(), "x.json")
	f := NewFile("entities", path, repo, WithObserver(obs))
	ctx := context.Background()

	repo.add("a")
	require.NoError(t, f.Save(ctx))
	writeExternal(t, path, []string{"b"}, time.Now().Add(time.Hour))
	_, err := f.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.writes)
	assert.Equal(t, 1, obs.loads)
	assert.NoError(t, obs.lastErr)
}

func TestChangedOnDisk(t *testing.T) {
	repo := &listRepo{}
	path := filepath.Join(t.TempDir(), "x.json")
	f := NewFile("entities", path, repo)
	ctx := context.Background()

	changed, err := f.ChangedOnDisk()
	require.NoError(t, err)
	assert.False(t, changed)

	repo.add("a")
	require.NoError(t, f.Save(ctx))
	changed, err = f.ChangedOnDisk()
	require.NoError(t, err)
	assert.False(t, changed)

	writeExternal(t, path, []string{"other"}, time.Now().Add(time.Hour))
	changed, err = f.ChangedOnDisk()
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestWatcherHints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entity_repository.json")
	f := NewFile("entities", path, &listRepo{})

	w, err := NewWatcher(f)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_, err = WriteFile(path, []byte(`{"items":["x"]}`), 0o644)
	require.NoError(t, err)

	assert.Eventually(t, f.hinted.Load, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, err == nil || errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
