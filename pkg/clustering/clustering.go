// Package clustering suggests existing clusters for an unlabeled entity.
package clustering

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// DefaultTopN bounds the number of suggestions.
const DefaultTopN = 10

// Method ranks candidate clusters for an entity.
type Method interface {
	// PossibleClusters returns at most top-N clusters, most similar first.
	PossibleClusters(ctx context.Context, entity *models.Entity) ([]*models.Cluster, error)
}

// Cosine ranks clusters by the cosine similarity between the entity's
// mention vector and each cluster vector. Entities without a vector and
// clusters without a vector (no member has one) are never matched.
type Cosine struct {
	clusters store.ClusterRepository
	topN     int
}

var _ Method = (*Cosine)(nil)

// NewCosine returns a cosine ranking over clusters. topN <= 0 selects
// DefaultTopN.
func NewCosine(clusters store.ClusterRepository, topN int) *Cosine {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Cosine{clusters: clusters, topN: topN}
}

// TopN returns the suggestion bound.
func (c *Cosine) TopN() int { return c.topN }

type scored struct {
	cluster *models.Cluster
	score   float64
}

// PossibleClusters implements Method. Ties keep the repository order.
func (c *Cosine) PossibleClusters(ctx context.Context, entity *models.Entity) ([]*models.Cluster, error) {
	if !entity.MentionVector.Present() {
		return []*models.Cluster{}, nil
	}
	all, err := c.clusters.ListClusters(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]scored, 0, len(all))
	for _, cl := range all {
		if len(cl.Vector) != len(entity.MentionVector) {
			continue
		}
		ranked = append(ranked, scored{cluster: cl, score: Similarity(entity.MentionVector, cl.Vector)})
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]*models.Cluster, 0, min(c.topN, len(ranked)))
	for _, s := range ranked[:min(c.topN, len(ranked))] {
		out = append(out, s.cluster)
	}
	return out, nil
}

// Similarity returns the cosine similarity of a and b, or 0 when their
// lengths differ or either has zero norm.
func Similarity(a, b models.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
