package filestore

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"slices"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// EntitySnapshotName is the file name of the entity snapshot.
const EntitySnapshotName = "entity_repository.json"

type entitySnapshot struct {
	Entities []*models.Entity `json:"entities"`
	LastID   int64            `json:"last_id"`
}

// EntityRepository keeps entities in insertion order with id and source
// indexes.
type EntityRepository struct {
	entities []*models.Entity
	byID     map[string]*models.Entity
	bySource map[models.SourceKey]*models.Entity
	lastID   int64
	dirty    bool
	intN     func(int) int
}

var _ store.EntityRepository = (*EntityRepository)(nil)

// NewEntityRepository returns an empty repository.
func NewEntityRepository() *EntityRepository {
	r := &EntityRepository{intN: rand.IntN}
	r.Reset()
	return r
}

// Reset empties the repository.
func (r *EntityRepository) Reset() {
	r.entities = []*models.Entity{}
	r.byID = make(map[string]*models.Entity)
	r.bySource = make(map[models.SourceKey]*models.Entity)
	r.lastID = 0
	r.dirty = false
}

// Encode renders the snapshot document.
func (r *EntityRepository) Encode() ([]byte, error) {
	return encodeJSON(entitySnapshot{Entities: r.entities, LastID: r.lastID})
}

// Decode replaces the state with the snapshot in data.
func (r *EntityRepository) Decode(data []byte) error {
	var snap entitySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	r.Reset()
	for _, e := range snap.Entities {
		if e == nil {
			continue
		}
		r.insert(e)
	}
	r.lastID = snap.LastID
	return nil
}

// Dirty reports unsaved changes.
func (r *EntityRepository) Dirty() bool { return r.dirty }

// MarkClean clears the dirty flag after a save.
func (r *EntityRepository) MarkClean() { r.dirty = false }

func (r *EntityRepository) insert(e *models.Entity) {
	r.entities = append(r.entities, e)
	r.byID[e.ID] = e
	r.bySource[e.SourceKey()] = e
}

// AddEntity implements store.EntityRepository.
func (r *EntityRepository) AddEntity(_ context.Context, e *models.Entity) (*models.Entity, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.ID != "" {
		if _, ok := r.byID[e.ID]; ok {
			return nil, models.AlreadyExists(models.ResourceEntity, e.ID, "")
		}
	}
	if other, ok := r.bySource[e.SourceKey()]; ok {
		return nil, models.AlreadyExists(models.ResourceEntity, e.ID, "source "+e.SourceKey().String()+" used by entity "+other.ID)
	}

	stored := e.Clone()
	stored.ClusterID = nil
	if stored.ID == "" {
		stored.ID = nextID(&r.lastID, func(id string) bool { _, ok := r.byID[id]; return ok })
	}
	r.insert(stored)
	r.dirty = true
	return stored.Clone(), nil
}

// UpdateEntity implements store.EntityRepository.
func (r *EntityRepository) UpdateEntity(_ context.Context, e *models.Entity) (*models.Entity, error) {
	cur, ok := r.byID[e.ID]
	if !ok {
		return nil, models.NotFound(models.ResourceEntity, e.ID)
	}
	if cur.HasCluster() {
		return nil, models.Conflict(models.ResourceEntity, e.ID, "entity is in a cluster and cannot be updated")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if other, ok := r.bySource[e.SourceKey()]; ok && other.ID != e.ID {
		return nil, models.AlreadyExists(models.ResourceEntity, e.ID, "source "+e.SourceKey().String()+" used by entity "+other.ID)
	}

	delete(r.bySource, cur.SourceKey())
	cur.Mention = e.Mention
	cur.Source = e.Source
	cur.SourceID = e.SourceID
	cur.MentionVector = e.MentionVector.Clone()
	r.bySource[cur.SourceKey()] = cur
	r.dirty = true
	return cur.Clone(), nil
}

// DeleteEntity implements store.EntityRepository.
func (r *EntityRepository) DeleteEntity(_ context.Context, id string) error {
	e, ok := r.byID[id]
	if !ok {
		return models.NotFound(models.ResourceEntity, id)
	}
	if e.HasCluster() {
		return models.Conflict(models.ResourceEntity, id, "entity is in cluster "+*e.ClusterID)
	}

	r.entities = slices.DeleteFunc(r.entities, func(x *models.Entity) bool { return x == e })
	delete(r.byID, id)
	delete(r.bySource, e.SourceKey())
	r.dirty = true
	return nil
}

// GetEntity implements store.EntityRepository.
func (r *EntityRepository) GetEntity(_ context.Context, id string) (*models.Entity, error) {
	e, ok := r.byID[id]
	if !ok {
		return nil, models.NotFound(models.ResourceEntity, id)
	}
	return e.Clone(), nil
}

// GetEntityBySourceID implements store.EntityRepository.
func (r *EntityRepository) GetEntityBySourceID(_ context.Context, source, sourceID string) (*models.Entity, error) {
	key := models.SourceKey{Source: source, SourceID: sourceID}
	e, ok := r.bySource[key]
	if !ok {
		return nil, models.NotFound(models.ResourceEntity, key.String())
	}
	return e.Clone(), nil
}

// ListEntities implements store.EntityRepository.
func (r *EntityRepository) ListEntities(_ context.Context) ([]*models.Entity, error) {
	out := make([]*models.Entity, len(r.entities))
	for i, e := range r.entities {
		out[i] = e.Clone()
	}
	return out, nil
}

// ListEntitiesBySource implements store.EntityRepository.
func (r *EntityRepository) ListEntitiesBySource(_ context.Context, source string) ([]*models.Entity, error) {
	out := []*models.Entity{}
	for _, e := range r.entities {
		if e.Source == source {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (r *EntityRepository) unlabeled() []*models.Entity {
	var out []*models.Entity
	for _, e := range r.entities {
		if !e.HasCluster() {
			out = append(out, e)
		}
	}
	return out
}

// RandomUnlabeled implements store.EntityRepository.
func (r *EntityRepository) RandomUnlabeled(_ context.Context) (*models.Entity, error) {
	candidates := r.unlabeled()
	if len(candidates) == 0 {
		return nil, models.NotFound(models.ResourceEntity, "unlabeled")
	}
	return candidates[r.intN(len(candidates))].Clone(), nil
}

// RandomUnlabeledN implements store.EntityRepository.
func (r *EntityRepository) RandomUnlabeledN(_ context.Context, n int) ([]*models.Entity, error) {
	candidates := r.unlabeled()
	if len(candidates) == 0 {
		return nil, models.NotFound(models.ResourceEntity, "unlabeled")
	}
	n = max(0, min(n, len(candidates)))

	// partial Fisher-Yates over the candidate slice
	out := make([]*models.Entity, n)
	for i := 0; i < n; i++ {
		j := i + r.intN(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
		out[i] = candidates[i].Clone()
	}
	return out, nil
}

// lookup returns the stored entity for in-package mutation by the cluster
// repository.
func (r *EntityRepository) lookup(id string) (*models.Entity, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// setCluster changes the back-reference of a stored entity.
func (r *EntityRepository) setCluster(e *models.Entity, clusterID *string) {
	e.ClusterID = clusterID
	r.dirty = true
}
