package storetest

import (
	"testing"

	"github.com/eecworkbench/eec/pkg/models"
)

func runEntityTests(t *testing.T, factory Factory) {
	t.Run("AddAndGet", func(t *testing.T) { testAddAndGetEntity(t, factory) })
	t.Run("AddRejectsDuplicates", func(t *testing.T) { testAddEntityDuplicates(t, factory) })
	t.Run("AddMintsIDs", func(t *testing.T) { testAddEntityMintsID(t, factory) })
	t.Run("AddIgnoresClusterID", func(t *testing.T) { testAddEntityIgnoresCluster(t, factory) })
	t.Run("BySource", func(t *testing.T) { testEntitiesBySource(t, factory) })
	t.Run("Update", func(t *testing.T) { testUpdateEntity(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDeleteEntity(t, factory) })
	t.Run("DeleteClusteredConflicts", func(t *testing.T) { testDeleteClusteredEntity(t, factory) })
	t.Run("RandomUnlabeled", func(t *testing.T) { testRandomUnlabeled(t, factory) })
	t.Run("RandomUnlabeledN", func(t *testing.T) { testRandomUnlabeledN(t, factory) })
}

func testAddAndGetEntity(t *testing.T, factory Factory) {
	r := factory(t).Entities
	ctx := t.Context()

	in := &models.Entity{ID: "e1", Mention: "Zürich 東京", Source: "wiki", SourceID: "42", MentionVector: models.Vector{0.1, -2.5e-7}}
	got := mustAddEntity(t, r, in)
	if got.ID != "e1" || got.HasCluster() {
		t.Fatalf("unexpected stored entity: %+v", got)
	}

	fetched, err := r.GetEntity(ctx, "e1")
	expectNoError(t, "GetEntity", err)
	if fetched.Mention != in.Mention || len(fetched.MentionVector) != 2 || fetched.MentionVector[1] != -2.5e-7 {
		t.Fatalf("GetEntity returned %+v", fetched)
	}

	_, err = r.GetEntity(ctx, "missing")
	expectKind(t, "GetEntity(missing)", err, models.ErrNotFound)
}

func testAddEntityDuplicates(t *testing.T, factory Factory) {
	r := factory(t).Entities
	ctx := t.Context()
	mustAddEntity(t, r, newEntity("e1", "wiki", "42"))

	_, err := r.AddEntity(ctx, newEntity("e1", "wiki", "43"))
	expectKind(t, "AddEntity(same id)", err, models.ErrAlreadyExists)

	_, err = r.AddEntity(ctx, newEntity("e2", "wiki", "42"))
	expectKind(t, "AddEntity(same source pair)", err, models.ErrAlreadyExists)

	_, err = r.AddEntity(ctx, newEntity("e3", "news", "42"))
	expectNoError(t, "AddEntity(same source id, other source)", err)

	all, err := r.ListEntities(ctx)
	expectNoError(t, "ListEntities", err)
	if len(all) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(all))
	}
}

func testAddEntityMintsID(t *testing.T, factory Factory) {
	r := factory(t).Entities
	a := mustAddEntity(t, r, newEntity("", "wiki", "1"))
	b := mustAddEntity(t, r, newEntity("", "wiki", "2"))
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct minted ids, got %q and %q", a.ID, b.ID)
	}
}

func testAddEntityIgnoresCluster(t *testing.T, factory Factory) {
	r := factory(t).Entities
	cid := "c1"
	e := newEntity("e1", "wiki", "1")
	e.ClusterID = &cid
	got := mustAddEntity(t, r, e)
	if got.HasCluster() {
		t.Fatalf("entity stored with cluster %q", got.ClusterIDOrEmpty())
	}
}

func testEntitiesBySource(t *testing.T, factory Factory) {
	r := factory(t).Entities
	ctx := t.Context()
	mustAddEntity(t, r, newEntity("e1", "wiki", "1"))
	mustAddEntity(t, r, newEntity("e2", "news", "1"))
	mustAddEntity(t, r, newEntity("e3", "wiki", "2"))

	wiki, err := r.ListEntitiesBySource(ctx, "wiki")
	expectNoError(t, "ListEntitiesBySource", err)
	if len(wiki) != 2 {
		t.Fatalf("expected 2 wiki entities, got %d", len(wiki))
	}

	none, err := r.ListEntitiesBySource(ctx, "blog")
	expectNoError(t, "ListEntitiesBySource(empty)", err)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", none)
	}

	e, err := r.GetEntityBySourceID(ctx, "news", "1")
	expectNoError(t, "GetEntityBySourceID", err)
	if e.ID != "e2" {
		t.Fatalf("GetEntityBySourceID returned %q", e.ID)
	}

	_, err = r.GetEntityBySourceID(ctx, "news", "2")
	expectKind(t, "GetEntityBySourceID(missing)", err, models.ErrNotFound)
}

func testUpdateEntity(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1"))
	mustAddEntity(t, repos.Entities, newEntity("e2", "wiki", "2"))

	upd := newEntity("e1", "wiki", "10")
	upd.Mention = "renamed"
	got, err := repos.Entities.UpdateEntity(ctx, upd)
	expectNoError(t, "UpdateEntity", err)
	if got.Mention != "renamed" || got.SourceID != "10" {
		t.Fatalf("UpdateEntity returned %+v", got)
	}

	// the old source pair is free again
	mustAddEntity(t, repos.Entities, newEntity("e3", "wiki", "1"))

	_, err = repos.Entities.UpdateEntity(ctx, newEntity("e1", "wiki", "2"))
	expectKind(t, "UpdateEntity(taken source)", err, models.ErrAlreadyExists)

	_, err = repos.Entities.UpdateEntity(ctx, newEntity("missing", "wiki", "99"))
	expectKind(t, "UpdateEntity(missing)", err, models.ErrNotFound)

	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	_, err = repos.Clusters.AddEntityToCluster(ctx, "c1", "e2")
	expectNoError(t, "AddEntityToCluster", err)
	_, err = repos.Entities.UpdateEntity(ctx, newEntity("e2", "wiki", "20"))
	expectKind(t, "UpdateEntity(clustered)", err, models.ErrConflict)
}

func testDeleteEntity(t *testing.T, factory Factory) {
	r := factory(t).Entities
	ctx := t.Context()
	mustAddEntity(t, r, newEntity("e1", "wiki", "1"))

	expectNoError(t, "DeleteEntity", r.DeleteEntity(ctx, "e1"))
	expectKind(t, "DeleteEntity(again)", r.DeleteEntity(ctx, "e1"), models.ErrNotFound)

	// id and source pair can be reused after deletion
	mustAddEntity(t, r, newEntity("e1", "wiki", "1"))
}

func testDeleteClusteredEntity(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()
	mustAddEntity(t, repos.Entities, newEntity("e1", "wiki", "1", 1, 2))
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	_, err := repos.Clusters.AddEntityToCluster(ctx, "c1", "e1")
	expectNoError(t, "AddEntityToCluster", err)

	before, err := repos.Clusters.GetCluster(ctx, "c1")
	expectNoError(t, "GetCluster", err)

	expectKind(t, "DeleteEntity(clustered)", repos.Entities.DeleteEntity(ctx, "e1"), models.ErrConflict)

	if got := clusterOf(t, repos.Entities, "e1"); got != "c1" {
		t.Fatalf("entity cluster changed to %q", got)
	}
	after, err := repos.Clusters.GetCluster(ctx, "c1")
	expectNoError(t, "GetCluster", err)
	if !sameMembers(before.EntityIDs, after.EntityIDs) {
		t.Fatalf("cluster members changed: %v -> %v", before.EntityIDs, after.EntityIDs)
	}
	expectConsistent(t, repos)
}

func testRandomUnlabeled(t *testing.T, factory Factory) {
	repos := factory(t)
	ctx := t.Context()

	_, err := repos.Entities.RandomUnlabeled(ctx)
	expectKind(t, "RandomUnlabeled(empty)", err, models.ErrNotFound)

	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		mustAddEntity(t, repos.Entities, newEntity(id, "wiki", id))
	}
	mustAddCluster(t, repos.Clusters, "c1", "Foo")
	_, err = repos.Clusters.AddEntityToCluster(ctx, "c1", "e4")
	expectNoError(t, "AddEntityToCluster", err)

	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		e, err := repos.Entities.RandomUnlabeled(ctx)
		expectNoError(t, "RandomUnlabeled", err)
		if e.HasCluster() {
			t.Fatalf("RandomUnlabeled returned clustered entity %q", e.ID)
		}
		seen[e.ID]++
	}
	for _, id := range []string{"e1", "e2", "e3"} {
		if seen[id] == 0 {
			t.Fatalf("entity %q never selected in 300 draws: %v", id, seen)
		}
	}

	for _, id := range []string{"e1", "e2", "e3"} {
		_, err = repos.Clusters.AddEntityToCluster(ctx, "c1", id)
		expectNoError(t, "AddEntityToCluster", err)
	}
	_, err = repos.Entities.RandomUnlabeled(ctx)
	expectKind(t, "RandomUnlabeled(all labeled)", err, models.ErrNotFound)
}

func testRandomUnlabeledN(t *testing.T, factory Factory) {
	r := factory(t).Entities
	ctx := t.Context()
	for _, id := range []string{"e1", "e2", "e3"} {
		mustAddEntity(t, r, newEntity(id, "wiki", id))
	}

	got, err := r.RandomUnlabeledN(ctx, 2)
	expectNoError(t, "RandomUnlabeledN", err)
	if len(got) != 2 || got[0].ID == got[1].ID {
		t.Fatalf("expected 2 distinct entities, got %v", got)
	}

	got, err = r.RandomUnlabeledN(ctx, 10)
	expectNoError(t, "RandomUnlabeledN(more than available)", err)
	if len(got) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(got))
	}
}
