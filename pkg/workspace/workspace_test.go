package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
	"github.com/eecworkbench/eec/pkg/store/filestore"
	"github.com/eecworkbench/eec/pkg/store/sqlstore"
)

func openFileWorkspace(t *testing.T, dir string) *Workspace {
	t.Helper()
	w, err := Open(Config{Type: BackendFile, DataPath: dir})
	require.NoError(t, err)
	return w
}

func mention(source, id, text string) *models.Entity {
	return &models.Entity{Mention: text, Source: source, SourceID: id}
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib/test")

	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, BackendFile, cfg.Type)
	assert.Equal(t, filepath.Join("/var/lib/test", "eec", "data"), cfg.DataPath)
	require.NoError(t, cfg.Validate())

	pg := Config{Type: BackendPostgres}
	pg.ApplyDefaults()
	assert.Equal(t, 5432, pg.Postgres.Port)
	assert.Error(t, pg.Validate(), "postgres without host must be rejected")

	bad := Config{Type: "redis"}
	assert.Error(t, bad.Validate())
}

func TestGuardedChangesReachOtherWorkspaces(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()
	a := openFileWorkspace(t, dir)
	b := openFileWorkspace(t, dir)

	var created *models.Entity
	require.NoError(t, a.EntityGuard().Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = a.Entities.AddEntity(ctx, mention("wiki", "Q1", "Ada Lovelace"))
		return err
	}))
	assert.FileExists(t, filepath.Join(dir, filestore.EntitySnapshotName))

	require.NoError(t, b.DataGuard().Do(ctx, func(ctx context.Context) error {
		c, err := b.Clusters.AddCluster(ctx, &models.Cluster{Name: "Lovelace"})
		if err != nil {
			return err
		}
		_, err = b.Clusters.AddEntityToCluster(ctx, c.ID, created.ID)
		return err
	}))

	require.NoError(t, a.EntityGuard().Do(ctx, func(ctx context.Context) error {
		e, err := a.Entities.GetEntity(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, e.HasCluster(), "entity reloaded with its new cluster")
		return nil
	}))

	violations, err := a.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCheckReportsBrokenSnapshots(t *testing.T) {
	dir := t.TempDir()
	entities := `{"entities":[{"entity_id":"e1","mention":"m","entity_source":"s","entity_source_id":"1","mention_vector":null,"cluster_id":"c9"}],"last_id":1}`
	clusters := `{"clusters":[{"cluster_id":"c1","cluster_name":"n","entity_ids":["e1"],"cluster_vector":[]}],"last_cluster_id":1}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, filestore.EntitySnapshotName), []byte(entities), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, filestore.ClusterSnapshotName), []byte(clusters), 0o644))

	w := openFileWorkspace(t, dir)
	violations, err := w.Check(t.Context())
	require.NoError(t, err)
	assert.Len(t, violations, 2)
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	w := openFileWorkspace(t, t.TempDir())
	ctx := t.Context()

	res, err := w.Bootstrap(ctx, "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, store.BootstrapCreated, res.Action)
	assert.Empty(t, res.Password)

	res, err = w.Bootstrap(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, store.BootstrapNone, res.Action)
}

func TestCloseSavesPendingChanges(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()
	w := openFileWorkspace(t, dir)

	// a change made outside any guard stays dirty until Close
	_, err := w.Entities.AddEntity(ctx, mention("wiki", "Q2", "Grace Hopper"))
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	again := openFileWorkspace(t, dir)
	require.NoError(t, again.EntityGuard().Do(ctx, func(ctx context.Context) error {
		all, err := again.Entities.ListEntities(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		return nil
	}))
}

func TestCloseKeepsForeignWrites(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()
	a := openFileWorkspace(t, dir)
	b := openFileWorkspace(t, dir)

	require.NoError(t, a.UserGuard().Do(ctx, func(ctx context.Context) error {
		_, err := a.Users.AddUser(ctx, "alice", "hash", models.Scopes{models.ScopeEditor})
		return err
	}))
	_, err := a.Users.AddUser(ctx, "mallory", "hash", nil)
	require.NoError(t, err)

	require.NoError(t, b.UserGuard().Do(ctx, func(ctx context.Context) error {
		_, err := b.Users.AddUser(ctx, "bob", "hash", nil)
		return err
	}))

	require.NoError(t, a.Close(ctx))

	check := openFileWorkspace(t, dir)
	require.NoError(t, check.UserGuard().Do(ctx, func(ctx context.Context) error {
		_, err := check.Users.GetUserByUsername(ctx, "bob")
		assert.NoError(t, err)
		_, err = check.Users.GetUserByUsername(ctx, "mallory")
		assert.ErrorIs(t, err, models.ErrNotFound)
		return nil
	}))
}

func TestSQLiteWorkspace(t *testing.T) {
	ctx := t.Context()
	w, err := Open(Config{
		Type:   BackendSQLite,
		SQLite: sqlstore.SQLiteConfig{Path: filepath.Join(t.TempDir(), "eec.db")},
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, w.Close(ctx)) }()

	assert.Empty(t, w.Files())
	require.NoError(t, w.Healthcheck(ctx))

	require.NoError(t, w.EntityGuard().Do(ctx, func(ctx context.Context) error {
		_, err := w.Entities.AddEntity(ctx, mention("wiki", "Q3", "Alan Turing"))
		return err
	}))
	violations, err := w.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.NoError(t, w.Watch(ctx))
}
