package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/snapshot"
	"github.com/eecworkbench/eec/pkg/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) storetest.Repos {
		entities := NewEntityRepository()
		return storetest.Repos{
			Entities: entities,
			Clusters: NewClusterRepository(entities),
			Users:    NewUserRepository(),
		}
	})
}

// roundTrip saves repo, decodes it into fresh, saves again and returns both
// byte streams.
func roundTrip(t *testing.T, repo, fresh snapshot.Repository) ([]byte, []byte) {
	t.Helper()
	first, err := repo.Encode()
	require.NoError(t, err)
	require.NoError(t, fresh.Decode(first))
	second, err := fresh.Encode()
	require.NoError(t, err)
	return first, second
}

func TestEntitySnapshot_RoundTrip(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		first, second := roundTrip(t, NewEntityRepository(), NewEntityRepository())
		assert.Equal(t, string(first), string(second))
		assert.Contains(t, string(first), `"entities": []`)
	})

	t.Run("UnicodeAndFloats", func(t *testing.T) {
		ctx := t.Context()
		r := NewEntityRepository()
		_, err := r.AddEntity(ctx, &models.Entity{
			ID: "e1", Mention: "Müller & <Söhne> 北京", Source: "wiki", SourceID: "1",
			MentionVector: models.Vector{0.1, 1e-300, -3.14159265358979, 12345678.9},
		})
		require.NoError(t, err)
		_, err = r.AddEntity(ctx, &models.Entity{Mention: "plain", Source: "news", SourceID: "2"})
		require.NoError(t, err)

		fresh := NewEntityRepository()
		first, second := roundTrip(t, r, fresh)
		assert.Equal(t, string(first), string(second))
		assert.Contains(t, string(first), "Müller & <Söhne> 北京")

		got, err := fresh.GetEntity(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, models.Vector{0.1, 1e-300, -3.14159265358979, 12345678.9}, got.MentionVector)
		assert.False(t, fresh.Dirty())
	})

	t.Run("CounterSurvives", func(t *testing.T) {
		ctx := t.Context()
		r := NewEntityRepository()
		a, err := r.AddEntity(ctx, &models.Entity{Mention: "a", Source: "s", SourceID: "1"})
		require.NoError(t, err)
		require.NoError(t, r.DeleteEntity(ctx, a.ID))

		fresh := NewEntityRepository()
		roundTrip(t, r, fresh)
		b, err := fresh.AddEntity(ctx, &models.Entity{Mention: "b", Source: "s", SourceID: "2"})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID, "deleted ids are not reissued")
	})
}

func TestClusterSnapshot_RoundTrip(t *testing.T) {
	ctx := t.Context()
	entities := NewEntityRepository()
	clusters := NewClusterRepository(entities)
	_, err := entities.AddEntity(ctx, &models.Entity{ID: "e1", Mention: "a", Source: "s", SourceID: "1", MentionVector: models.Vector{1, 3}})
	require.NoError(t, err)
	_, err = clusters.AddCluster(ctx, &models.Cluster{ID: "c1", Name: "Zoë"})
	require.NoError(t, err)
	_, err = clusters.AddCluster(ctx, &models.Cluster{ID: "c2", Name: "empty"})
	require.NoError(t, err)
	_, err = clusters.AddEntityToCluster(ctx, "c1", "e1")
	require.NoError(t, err)

	freshEntities := NewEntityRepository()
	freshClusters := NewClusterRepository(freshEntities)
	first, second := roundTrip(t, clusters, freshClusters)
	assert.Equal(t, string(first), string(second))
	roundTrip(t, entities, freshEntities)

	c1, err := freshClusters.GetCluster(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, c1.EntityIDs)
	assert.Equal(t, models.Vector{1, 3}, c1.Vector)

	c2, err := freshClusters.GetCluster(ctx, "c2")
	require.NoError(t, err)
	assert.NotNil(t, c2.EntityIDs)
	assert.Empty(t, c2.EntityIDs)
}

func TestUserSnapshot_RoundTrip(t *testing.T) {
	ctx := t.Context()
	r := NewUserRepository()
	u, err := r.AddUser(ctx, "jürgen", "$2a$10$abc", models.Scopes{models.ScopeEditor})
	require.NoError(t, err)

	fresh := NewUserRepository()
	first, second := roundTrip(t, r, fresh)
	assert.Equal(t, string(first), string(second))

	got, err := fresh.GetUserByUsername(ctx, "jürgen")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "$2a$10$abc", got.HashedPassword)
	assert.True(t, got.Scopes.Has(models.ScopeEditor))
}

func TestDecode_RejectsGarbage(t *testing.T) {
	r := NewEntityRepository()
	_, err := r.AddEntity(t.Context(), &models.Entity{ID: "e1", Mention: "a", Source: "s", SourceID: "1"})
	require.NoError(t, err)

	assert.Error(t, r.Decode([]byte("{not json")))
}

func TestDirtyTracking(t *testing.T) {
	ctx := t.Context()
	entities := NewEntityRepository()
	clusters := NewClusterRepository(entities)
	assert.False(t, entities.Dirty())

	_, err := entities.AddEntity(ctx, &models.Entity{ID: "e1", Mention: "a", Source: "s", SourceID: "1"})
	require.NoError(t, err)
	assert.True(t, entities.Dirty())
	entities.MarkClean()

	_, err = entities.GetEntity(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, entities.Dirty(), "reads do not dirty")

	_, err = clusters.AddCluster(ctx, &models.Cluster{ID: "c1", Name: "x"})
	require.NoError(t, err)
	_, err = clusters.AddEntityToCluster(ctx, "c1", "e1")
	require.NoError(t, err)
	assert.True(t, clusters.Dirty())
	assert.True(t, entities.Dirty(), "membership changes dirty both sides")

	entities.MarkClean()
	clusters.MarkClean()
	_, err = clusters.AddEntityToCluster(ctx, "c1", "e1")
	require.ErrorIs(t, err, models.ErrAlreadyInCluster)
	assert.False(t, entities.Dirty(), "rejected mutations do not dirty")
	assert.False(t, clusters.Dirty())
}

func TestSnapshotFiles(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()

	entities := NewEntityRepository()
	ef := snapshot.NewFile("entities", filepath.Join(dir, EntitySnapshotName), entities)
	_, err := ef.Refresh(ctx)
	require.NoError(t, err)

	_, err = entities.AddEntity(ctx, &models.Entity{ID: "e1", Mention: "a", Source: "s", SourceID: "1"})
	require.NoError(t, err)
	require.NoError(t, ef.Persist(ctx))

	raw, err := os.ReadFile(filepath.Join(dir, EntitySnapshotName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entity_id": "e1"`)
	assert.Contains(t, string(raw), `"last_id": 0`)

	other := NewEntityRepository()
	of := snapshot.NewFile("entities", filepath.Join(dir, EntitySnapshotName), other)
	reloaded, err := of.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
	_, err = other.GetEntity(ctx, "e1")
	require.NoError(t, err)
}

func TestRandomUnlabeled_Uniform(t *testing.T) {
	ctx := t.Context()
	r := NewEntityRepository()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		_, err := r.AddEntity(ctx, &models.Entity{ID: id, Mention: id, Source: "s", SourceID: id})
		require.NoError(t, err)
	}

	const draws = 4000
	counts := map[string]int{}
	for range draws {
		e, err := r.RandomUnlabeled(ctx)
		require.NoError(t, err)
		counts[e.ID]++
	}
	for _, id := range ids {
		// expected 1000 each; bounds are far outside plausible variance
		assert.InDelta(t, draws/len(ids), counts[id], 200, "entity %s", id)
	}
}

func TestRandomUnlabeled_Deterministic(t *testing.T) {
	ctx := t.Context()
	r := NewEntityRepository()
	for _, id := range []string{"a", "b", "c"} {
		_, err := r.AddEntity(ctx, &models.Entity{ID: id, Mention: id, Source: "s", SourceID: id})
		require.NoError(t, err)
	}
	r.intN = func(n int) int { return n - 1 }

	e, err := r.RandomUnlabeled(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", e.ID)
}
