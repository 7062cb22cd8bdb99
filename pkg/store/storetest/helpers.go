package storetest

import (
	"errors"
	"slices"
	"testing"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

func newEntity(id, source, sourceID string, vec ...float64) *models.Entity {
	e := &models.Entity{ID: id, Mention: "mention of " + id, Source: source, SourceID: sourceID}
	if len(vec) > 0 {
		e.MentionVector = models.Vector(vec)
	}
	return e
}

func mustAddEntity(t *testing.T, r store.EntityRepository, e *models.Entity) *models.Entity {
	t.Helper()
	got, err := r.AddEntity(t.Context(), e)
	if err != nil {
		t.Fatalf("AddEntity(%q) failed: %v", e.ID, err)
	}
	return got
}

func mustAddCluster(t *testing.T, r store.ClusterRepository, id, name string) *models.Cluster {
	t.Helper()
	got, err := r.AddCluster(t.Context(), &models.Cluster{ID: id, Name: name})
	if err != nil {
		t.Fatalf("AddCluster(%q) failed: %v", id, err)
	}
	return got
}

func expectKind(t *testing.T, op string, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("%s: expected %v, got %v", op, kind, err)
	}
}

func expectNoError(t *testing.T, op string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s failed: %v", op, err)
	}
}

// expectConsistent fails the test if the bidirectional invariant is broken.
func expectConsistent(t *testing.T, repos Repos) {
	t.Helper()
	violations, err := store.Check(t.Context(), repos.Entities, repos.Clusters)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for _, v := range violations {
		t.Errorf("consistency violation: %s", v)
	}
}

func sameMembers(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func clusterOf(t *testing.T, r store.EntityRepository, id string) string {
	t.Helper()
	e, err := r.GetEntity(t.Context(), id)
	if err != nil {
		t.Fatalf("GetEntity(%q) failed: %v", id, err)
	}
	return e.ClusterIDOrEmpty()
}
