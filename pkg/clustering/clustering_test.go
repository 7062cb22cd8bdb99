package clustering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store/filestore"
)

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(models.Vector{1, 2}, models.Vector{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, Similarity(models.Vector{1, 0}, models.Vector{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Similarity(models.Vector{1, 1}, models.Vector{-1, -1}), 1e-12)
	assert.Zero(t, Similarity(models.Vector{0, 0}, models.Vector{1, 1}))
	assert.Zero(t, Similarity(models.Vector{1}, models.Vector{1, 1}))
	assert.Zero(t, Similarity(nil, nil))
}

// seed creates one cluster per vector, each holding one member with that
// mention vector. A nil vector yields a cluster without a vector.
func seed(t *testing.T, vectors ...models.Vector) *filestore.ClusterRepository {
	t.Helper()
	ctx := context.Background()
	entities := filestore.NewEntityRepository()
	clusters := filestore.NewClusterRepository(entities)

	for i, v := range vectors {
		e, err := entities.AddEntity(ctx, &models.Entity{
			Mention:       "m",
			Source:        "test",
			SourceID:      string(rune('a' + i)),
			MentionVector: v,
		})
		require.NoError(t, err)
		c, err := clusters.AddCluster(ctx, &models.Cluster{Name: string(rune('A' + i))})
		require.NoError(t, err)
		_, err = clusters.AddEntityToCluster(ctx, c.ID, e.ID)
		require.NoError(t, err)
	}
	return clusters
}

func names(cs []*models.Cluster) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestPossibleClusters_Ranking(t *testing.T) {
	clusters := seed(t,
		models.Vector{0, 1},   // A: orthogonal
		models.Vector{1, 0},   // B: identical direction
		nil,                   // C: no vector
		models.Vector{1, 1},   // D: 45 degrees
		models.Vector{1, 2, 3}, // E: other dimension
	)
	m := NewCosine(clusters, 0)
	assert.Equal(t, DefaultTopN, m.TopN())

	got, err := m.PossibleClusters(t.Context(), &models.Entity{MentionVector: models.Vector{2, 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D", "A"}, names(got))
}

func TestPossibleClusters_Bounded(t *testing.T) {
	vectors := make([]models.Vector, 15)
	for i := range vectors {
		vectors[i] = models.Vector{1, float64(i)}
	}
	m := NewCosine(seed(t, vectors...), 3)

	got, err := m.PossibleClusters(t.Context(), &models.Entity{MentionVector: models.Vector{1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(got))
}

func TestPossibleClusters_NoVector(t *testing.T) {
	m := NewCosine(seed(t, models.Vector{1, 0}), 5)
	got, err := m.PossibleClusters(t.Context(), &models.Entity{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
