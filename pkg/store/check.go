package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/eecworkbench/eec/pkg/models"
)

// Violation is one broken consistency rule found by Check.
type Violation struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
	Problem  string `json:"problem"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %q: %s", v.Resource, v.ID, v.Problem)
}

// Check audits the entity/cluster bidirectional invariant and the
// uniqueness rules across both repositories. It never modifies anything.
func Check(ctx context.Context, entities EntityRepository, clusters ClusterRepository) ([]Violation, error) {
	es, err := entities.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := clusters.ListClusters(ctx)
	if err != nil {
		return nil, err
	}

	var out []Violation
	add := func(resource, id, format string, args ...any) {
		out = append(out, Violation{Resource: resource, ID: id, Problem: fmt.Sprintf(format, args...)})
	}

	byEntity := make(map[string]*models.Entity, len(es))
	bySource := make(map[models.SourceKey]string, len(es))
	for _, e := range es {
		if _, dup := byEntity[e.ID]; dup {
			add(models.ResourceEntity, e.ID, "duplicate entity id")
		}
		byEntity[e.ID] = e
		if other, dup := bySource[e.SourceKey()]; dup {
			add(models.ResourceEntity, e.ID, "source %s already used by entity %q", e.SourceKey(), other)
		}
		bySource[e.SourceKey()] = e.ID
	}

	byCluster := make(map[string]*models.Cluster, len(cs))
	for _, c := range cs {
		if _, dup := byCluster[c.ID]; dup {
			add(models.ResourceCluster, c.ID, "duplicate cluster id")
		}
		byCluster[c.ID] = c

		seen := make(map[string]bool, len(c.EntityIDs))
		for _, id := range c.EntityIDs {
			if seen[id] {
				add(models.ResourceCluster, c.ID, "member %q listed twice", id)
			}
			seen[id] = true

			e, ok := byEntity[id]
			switch {
			case !ok:
				add(models.ResourceCluster, c.ID, "member %q does not exist", id)
			case e.ClusterIDOrEmpty() != c.ID:
				add(models.ResourceCluster, c.ID, "member %q points to cluster %q", id, e.ClusterIDOrEmpty())
			}
		}
	}

	for _, e := range es {
		if !e.HasCluster() {
			continue
		}
		c, ok := byCluster[*e.ClusterID]
		switch {
		case !ok:
			add(models.ResourceEntity, e.ID, "cluster %q does not exist", *e.ClusterID)
		case !slices.Contains(c.EntityIDs, e.ID):
			add(models.ResourceEntity, e.ID, "cluster %q does not list it as a member", c.ID)
		}
	}
	return out, nil
}
