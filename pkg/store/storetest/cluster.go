package storetest

import (
	"math"
	"testing"

	"github.com/eecworkbench/eec/pkg/models"
)

func runClusterTests(t *testing.T, factory Factory) {
	t.Run("AddAndGet", func(t *testing.T) { testAddAndGetCluster(t, factory) })
	t.Run("AddRejects", func(t *testing.T) { testAddClusterRejects(t, factory) })
	t.Run("AttachDetach", func(t *testing.T) { testAttachDetach(t, factory) })
	t.Run("AttachTwice", func(t *testing.T) { testAttachTwice(t, factory) })
	t.Run("AttachMissing", func(t *testing.T) { testAttachMissing(t, factory) })
	t.Run("RemoveNonMember", func(t *testing.T) { testRemoveNonMember(t, factory) })
	t.Run("MoveBetweenClusters", func(t *testing.T) { testMoveBetweenClusters(t, factory) })
	t.Run("BulkAttachAllOrNothing", func(t *testing.T) { testBulkAttach(t, factory) })
	t.Run("VectorIsMemberMean", func(t *testing.T) { testClusterVector(t, factory) })
	t.Run("DeleteCluster", func(t *testing.T) { testDeleteCluster(t, factory) })
	t.Run("DeleteClustersAllOrNothing", func(t *testing.T) { testDeleteClusters(t, factory) })
	t.Run("DeleteAllClusters", func(t *testing.T) { testDeleteAllClusters(t, factory) })
}

func testAddAndGetCluster(t *testing.T, factory Factory) {
	r := factory(t).Clusters
	ctx := t.Context()

	c := mustAddCluster(t, r, "c1", "Foo")
	if c.ID != "c1" || c.Name != "Foo" || !c.IsEmpty() || c.Vector.Present() {
		t.Fatalf("unexpected new cluster: %+v", c)
	}
	minted := mustAddCluster(t, r, "", "Bar")
	if minted.ID == "" || minted.ID == "c1" {
		t.Fatalf("unexpected minted id %q", minted.ID)
	}

	all, err := r.ListClusters(ctx)
	expectNoError(t, "ListClusters", err)
	if len(all) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(all))
	}

	_, err = r.GetCluster(ctx, "missing")
	expectKind(t, "GetCluster(missing)", err, models.ErrNotFound)
}

func testAddClusterRejects(t *testing.T, factory Factory) {
	r := factory(t).Clusters
	ctx := t.Context()
	mustAddCluster(t, r, "c1", "Foo")

	_, err := r.AddCluster(ctx, &models.Cluster{ID: "c1", Name: "Again"})
	expectKind(t, "AddCluster(duplicate)", err, models.ErrAlreadyExists)

	_, err = r.AddCluster(ctx, &models.Cluster{ID: "c2", Name: "  "})
	expectKind(t, "AddCluster(blank name)", err, models.ErrInvalid)
}

func testAttachDetach(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1", 1, 0))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")

	c, err := repos.Clusters.AddEntityToCluster(ctx, "c1", "e1")
	expectNoError(t, "AddEntityToCluster", err)
	if !c.HasMember("e1") || clusterOf(t, repos.Entities, "e1") != "c1" {
		t.Fatalf("attach did not update both sides: %+v", c)
	}
	expectConsistent(t, repos)

	c, err = repos.Clusters.RemoveEntityFromCluster(ctx, "c1", "e1")
	expectNoError(t, "RemoveEntityFromCluster", err)
	if !c.IsEmpty() || clusterOf(t, repos.Entities, "e1") != "" {
		t.Fatalf("detach did not update both sides: %+v", c)
	}
	if c.Vector.Present() {
		t.Fatalf("empty cluster kept vector %v", c.Vector)
	}
	expectConsistent(t, repos)

	// once detached the entity can be deleted
	expectNoError(t, "DeleteEntity", repos.Entities.DeleteEntity(ctx, "e1"))
}

func testAttachTwice(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1"))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	mustAddCluster(t, repos.Clusters, "c2", "Bar")

	_, err := repos.Clusters.AddEntityToCluster(ctx, "c1", "e1")
	expectNoError(t, "AddEntityToCluster", err)

	_, err = repos.Clusters.AddEntityToCluster(ctx, "c1", "e1")
	expectKind(t, "AddEntityToCluster(same cluster)", err, models.ErrAlreadyInCluster)
	_, err = repos.Clusters.AddEntityToCluster(ctx, "c2", "e1")
	expectKind(t, "AddEntityToCluster(other cluster)", err, models.ErrAlreadyInCluster)

	c2, err := repos.Clusters.GetCluster(ctx, "c2")
	expectNoError(t, "GetCluster", err)
	if !c2.IsEmpty() {
		t.Fatalf("rejected attach changed c2: %v", c2.EntityIDs)
	}
	c1, err := repos.Clusters.GetCluster(ctx, "c1")
	expectNoError(t, "GetCluster", err)
	if len(c1.EntityIDs) != 1 {
		t.Fatalf("rejected attach changed c1: %v", c1.EntityIDs)
	}
	expectConsistent(t, repos)
}

func testAttachMissing(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1"))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")

	_, err := repos.Clusters.AddEntityToCluster(ctx, "missing", "e1")
	expectKind(t, "AddEntityToCluster(missing cluster)", err, models.ErrNotFound)
	_, err = repos.Clusters.AddEntityToCluster(ctx, "c1", "missing")
	expectKind(t, "AddEntityToCluster(missing entity)", err, models.ErrNotFound)

	if clusterOf(t, repos.Entities, "e1") != "" {
		t.Fatal("failed attach left a back-reference")
	}
	expectConsistent(t, repos)
}

func testRemoveNonMember(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1"))
	mustAddEntity(t, repos.Entities, newEntity("e2", "wiki", "2"))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	mustAddCluster(t, repos.Clusters, "c2", "Bar")
	_, err := repos.Clusters.AddEntityToCluster(ctx, "c2", "e2")
	expectNoError(t, "AddEntityToCluster", err)

	_, err = repos.Clusters.RemoveEntityFromCluster(ctx, "c1", "e1")
	expectKind(t, "RemoveEntityFromCluster(unclustered)", err, models.ErrNotFound)

	// e2 belongs to c2, removing it from c1 must not detach it
	_, err = repos.Clusters.RemoveEntityFromCluster(ctx, "c1", "e2")
	expectKind(t, "RemoveEntityFromCluster(other cluster)", err, models.ErrNotFound)
	if clusterOf(t, repos.Entities, "e2") != "c2" {
		t.Fatal("entity detached from the wrong cluster")
	}

	_, err = repos.Clusters.RemoveEntityFromCluster(ctx, "missing", "e2")
	expectKind(t, "RemoveEntityFromCluster(missing cluster)", err, models.ErrNotFound)
	expectConsistent(t, repos)
}

func testMoveBetweenClusters(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1", 2, 4))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	mustAddCluster(t, repos.Clusters, "c2", "Bar")

	_, err := repos.Clusters.AddEntityToCluster(ctx, "c1", "e1")
	expectNoError(t, "AddEntityToCluster(c1)", err)
	_, err = repos.Clusters.RemoveEntityFromCluster(ctx, "c1", "e1")
	expectNoError(t, "RemoveEntityFromCluster(c1)", err)
	c2, err := repos.Clusters.AddEntityToCluster(ctx, "c2", "e1")
	expectNoError(t, "AddEntityToCluster(c2)", err)

	if !c2.HasMember("e1") || clusterOf(t, repos.Entities, "e1") != "c2" {
		t.Fatalf("entity not moved: %+v", c2)
	}
	c1, err := repos.Clusters.GetCluster(ctx, "c1")
	expectNoError(t, "GetCluster", err)
	if !c1.IsEmpty() {
		t.Fatalf("c1 still lists %v", c1.EntityIDs)
	}
	expectConsistent(t, repos)

	// the empty cluster can now go, the populated one cannot
	expectNoError(t, "DeleteCluster(c1)", repos.Clusters.DeleteCluster(ctx, "c1"))
	expectKind(t, "DeleteCluster(c2)", repos.Clusters.DeleteCluster(ctx, "c2"), models.ErrConflict)
}

func testBulkAttach(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	for _, id := range []string{"e1", "e2", "e3"} {
		mustAddEntity(t, repos.Entities, newEntity(id, "wiki", id))
	}
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	mustAddCluster(t, repos.Clusters, "c2", "Bar")
	_, err := repos.Clusters.AddEntityToCluster(ctx, "c2", "e3")
	expectNoError(t, "AddEntityToCluster", err)

	_, err = repos.Clusters.AddEntitiesToCluster(ctx, "c1", []string{"e1", "e2", "e3"})
	expectKind(t, "AddEntitiesToCluster(one clustered)", err, models.ErrAlreadyInCluster)
	_, err = repos.Clusters.AddEntitiesToCluster(ctx, "c1", []string{"e1", "missing"})
	expectKind(t, "AddEntitiesToCluster(one missing)", err, models.ErrNotFound)

	for _, id := range []string{"e1", "e2"} {
		if got := clusterOf(t, repos.Entities, id); got != "" {
			t.Fatalf("failed bulk attach left %q in %q", id, got)
		}
	}

	c1, err := repos.Clusters.AddEntitiesToCluster(ctx, "c1", []string{"e1", "e2", "e1"})
	expectNoError(t, "AddEntitiesToCluster", err)
	if !sameMembers(c1.EntityIDs, []string{"e1", "e2"}) {
		t.Fatalf("unexpected members %v", c1.EntityIDs)
	}
	expectConsistent(t, repos)
}

func testClusterVector(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1", 1, 2))
	mustAddEntity(t, repos.Entities, newEntity("e2", "wiki", "2", 3, 6))
	mustAddEntity(t, repos.Entities, newEntity("e3", "wiki", "3"))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")

	c, err := repos.Clusters.AddEntitiesToCluster(ctx, "c1", []string{"e1", "e2", "e3"})
	expectNoError(t, "AddEntitiesToCluster", err)
	expectVector(t, c.Vector, 2, 4)

	c, err = repos.Clusters.RemoveEntityFromCluster(ctx, "c1", "e2")
	expectNoError(t, "RemoveEntityFromCluster", err)
	expectVector(t, c.Vector, 1, 2)

	stored, err := repos.Clusters.GetCluster(ctx, "c1")
	expectNoError(t, "GetCluster", err)
	expectVector(t, stored.Vector, 1, 2)
}

func expectVector(t *testing.T, got models.Vector, want ...float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("vector %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("vector %v, want %v", got, want)
		}
	}
}

func testDeleteCluster(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddCluster(t, repos.Clusters, "c1", "Foo")

	expectNoError(t, "DeleteCluster", repos.Clusters.DeleteCluster(ctx, "c1"))
	expectKind(t, "DeleteCluster(again)", repos.Clusters.DeleteCluster(ctx, "c1"), models.ErrNotFound)

	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1"))
	mustAddCluster(t, repos.Clusters, "c2", "Bar")
	_, err := repos.Clusters.AddEntityToCluster(ctx, "c2", "e1")
	expectNoError(t, "AddEntityToCluster", err)

	expectKind(t, "DeleteCluster(populated)", repos.Clusters.DeleteCluster(ctx, "c2"), models.ErrConflict)
	if clusterOf(t, repos.Entities, "e1") != "c2" {
		t.Fatal("rejected delete detached the member")
	}
	expectConsistent(t, repos)
}

func testDeleteClusters(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1"))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	mustAddCluster(t, repos.Clusters, "c2", "Bar")
	mustAddCluster(t, repos.Clusters, "c3", "Baz")
	_, err := repos.Clusters.AddEntityToCluster(ctx, "c3", "e1")
	expectNoError(t, "AddEntityToCluster", err)

	expectKind(t, "DeleteClusters(one populated)",
		repos.Clusters.DeleteClusters(ctx, []string{"c1", "c3"}), models.ErrConflict)
	expectKind(t, "DeleteClusters(one missing)",
		repos.Clusters.DeleteClusters(ctx, []string{"c1", "missing"}), models.ErrNotFound)

	all, err := repos.Clusters.ListClusters(ctx)
	expectNoError(t, "ListClusters", err)
	if len(all) != 3 {
		t.Fatalf("failed bulk delete removed clusters, %d left", len(all))
	}

	expectNoError(t, "DeleteClusters", repos.Clusters.DeleteClusters(ctx, []string{"c1", "c2"}))
	all, err = repos.Clusters.ListClusters(ctx)
	expectNoError(t, "ListClusters", err)
	if len(all) != 1 || all[0].ID != "c3" {
		t.Fatalf("unexpected clusters after delete: %v", all)
	}
	expectConsistent(t, repos)
}

func testDeleteAllClusters(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1"))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	mustAddCluster(t, repos.Clusters, "c2", "Bar")
	_, err := repos.Clusters.AddEntityToCluster(ctx, "c2", "e1")
	expectNoError(t, "AddEntityToCluster", err)

	expectKind(t, "DeleteAllClusters(populated)", repos.Clusters.DeleteAllClusters(ctx), models.ErrConflict)
	all, err := repos.Clusters.ListClusters(ctx)
	expectNoError(t, "ListClusters", err)
	if len(all) != 2 {
		t.Fatalf("failed delete-all removed clusters, %d left", len(all))
	}

	_, err = repos.Clusters.RemoveEntityFromCluster(ctx, "c2", "e1")
	expectNoError(t, "RemoveEntityFromCluster", err)
	expectNoError(t, "DeleteAllClusters", repos.Clusters.DeleteAllClusters(ctx))
	all, err = repos.Clusters.ListClusters(ctx)
	expectNoError(t, "ListClusters", err)
	if len(all) != 0 {
		t.Fatalf("expected no clusters, got %d", len(all))
	}
	expectConsistent(t, repos)
}
