package filestore

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// ClusterSnapshotName is the file name of the cluster snapshot.
const ClusterSnapshotName = "cluster_repository.json"

type clusterSnapshot struct {
	Clusters      []*models.Cluster `json:"clusters"`
	LastClusterID int64             `json:"last_cluster_id"`
}

// ClusterRepository keeps clusters in insertion order. Membership changes
// update the member set here and the back-reference in the entity
// repository together.
type ClusterRepository struct {
	entities *EntityRepository

	clusters []*models.Cluster
	byID     map[string]*models.Cluster
	lastID   int64
	dirty    bool
}

var _ store.ClusterRepository = (*ClusterRepository)(nil)

// NewClusterRepository returns an empty repository bound to entities.
func NewClusterRepository(entities *EntityRepository) *ClusterRepository {
	r := &ClusterRepository{entities: entities}
	r.Reset()
	return r
}

// Reset empties the repository.
func (r *ClusterRepository) Reset() {
	r.clusters = []*models.Cluster{}
	r.byID = make(map[string]*models.Cluster)
	r.lastID = 0
	r.dirty = false
}

// Encode renders the snapshot document.
func (r *ClusterRepository) Encode() ([]byte, error) {
	return encodeJSON(clusterSnapshot{Clusters: r.clusters, LastClusterID: r.lastID})
}

// Decode replaces the state with the snapshot in data.
func (r *ClusterRepository) Decode(data []byte) error {
	var snap clusterSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	r.Reset()
	for _, c := range snap.Clusters {
		if c == nil {
			continue
		}
		if c.EntityIDs == nil {
			c.EntityIDs = []string{}
		}
		r.clusters = append(r.clusters, c)
		r.byID[c.ID] = c
	}
	r.lastID = snap.LastClusterID
	return nil
}

// Dirty reports unsaved changes.
func (r *ClusterRepository) Dirty() bool { return r.dirty }

// MarkClean clears the dirty flag after a save.
func (r *ClusterRepository) MarkClean() { r.dirty = false }

// AddCluster implements store.ClusterRepository.
func (r *ClusterRepository) AddCluster(_ context.Context, c *models.Cluster) (*models.Cluster, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, models.Invalid(models.ResourceCluster, c.ID, "cluster_name is required")
	}
	if c.ID != "" {
		if _, ok := r.byID[c.ID]; ok {
			return nil, models.AlreadyExists(models.ResourceCluster, c.ID, "")
		}
	}

	stored := &models.Cluster{ID: c.ID, Name: c.Name, EntityIDs: []string{}, Vector: models.Vector{}}
	if stored.ID == "" {
		stored.ID = nextID(&r.lastID, func(id string) bool { _, ok := r.byID[id]; return ok })
	}
	r.clusters = append(r.clusters, stored)
	r.byID[stored.ID] = stored
	r.dirty = true
	return stored.Clone(), nil
}

// GetCluster implements store.ClusterRepository.
func (r *ClusterRepository) GetCluster(_ context.Context, id string) (*models.Cluster, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, models.NotFound(models.ResourceCluster, id)
	}
	return c.Clone(), nil
}

// ListClusters implements store.ClusterRepository.
func (r *ClusterRepository) ListClusters(_ context.Context) ([]*models.Cluster, error) {
	out := make([]*models.Cluster, len(r.clusters))
	for i, c := range r.clusters {
		out[i] = c.Clone()
	}
	return out, nil
}

func (r *ClusterRepository) checkDeletable(id string) error {
	c, ok := r.byID[id]
	if !ok {
		return models.NotFound(models.ResourceCluster, id)
	}
	if !c.IsEmpty() {
		return models.Conflict(models.ResourceCluster, id, "cluster still has members")
	}
	return nil
}

func (r *ClusterRepository) remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(r.byID, id)
	}
	r.clusters = slices.DeleteFunc(r.clusters, func(c *models.Cluster) bool { return drop[c.ID] })
	r.dirty = true
}

// DeleteCluster implements store.ClusterRepository.
func (r *ClusterRepository) DeleteCluster(_ context.Context, id string) error {
	if err := r.checkDeletable(id); err != nil {
		return err
	}
	r.remove(id)
	return nil
}

// DeleteClusters implements store.ClusterRepository.
func (r *ClusterRepository) DeleteClusters(_ context.Context, ids []string) error {
	for _, id := range ids {
		if err := r.checkDeletable(id); err != nil {
			return err
		}
	}
	r.remove(ids...)
	return nil
}

// DeleteAllClusters implements store.ClusterRepository.
func (r *ClusterRepository) DeleteAllClusters(_ context.Context) error {
	ids := make([]string, len(r.clusters))
	for i, c := range r.clusters {
		if !c.IsEmpty() {
			return models.Conflict(models.ResourceCluster, c.ID, "cluster still has members")
		}
		ids[i] = c.ID
	}
	r.remove(ids...)
	return nil
}

// AddEntityToCluster implements store.ClusterRepository.
func (r *ClusterRepository) AddEntityToCluster(ctx context.Context, clusterID, entityID string) (*models.Cluster, error) {
	return r.AddEntitiesToCluster(ctx, clusterID, []string{entityID})
}

// AddEntitiesToCluster implements store.ClusterRepository.
func (r *ClusterRepository) AddEntitiesToCluster(_ context.Context, clusterID string, entityIDs []string) (*models.Cluster, error) {
	c, ok := r.byID[clusterID]
	if !ok {
		return nil, models.NotFound(models.ResourceCluster, clusterID)
	}

	members := make([]*models.Entity, 0, len(entityIDs))
	seen := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		e, ok := r.entities.lookup(id)
		if !ok {
			return nil, models.NotFound(models.ResourceEntity, id)
		}
		if e.HasCluster() {
			return nil, models.AlreadyInCluster(id, *e.ClusterID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, e)
	}

	for _, e := range members {
		cid := c.ID
		r.entities.setCluster(e, &cid)
		c.EntityIDs = append(c.EntityIDs, e.ID)
	}
	r.recompute(c)
	r.dirty = true
	return c.Clone(), nil
}

// RemoveEntityFromCluster implements store.ClusterRepository.
func (r *ClusterRepository) RemoveEntityFromCluster(_ context.Context, clusterID, entityID string) (*models.Cluster, error) {
	c, ok := r.byID[clusterID]
	if !ok {
		return nil, models.NotFound(models.ResourceCluster, clusterID)
	}
	if !c.HasMember(entityID) {
		return nil, &models.RecordError{
			Kind:     models.ErrNotFound,
			Resource: models.ResourceEntity,
			ID:       entityID,
			Reason:   "not a member of cluster " + clusterID,
		}
	}

	c.EntityIDs = slices.DeleteFunc(c.EntityIDs, func(id string) bool { return id == entityID })
	if e, ok := r.entities.lookup(entityID); ok && e.ClusterIDOrEmpty() == clusterID {
		r.entities.setCluster(e, nil)
	}
	r.recompute(c)
	r.dirty = true
	return c.Clone(), nil
}

// recompute derives the cluster vector from its members' mention vectors.
func (r *ClusterRepository) recompute(c *models.Cluster) {
	vectors := make([]models.Vector, 0, len(c.EntityIDs))
	for _, id := range c.EntityIDs {
		if e, ok := r.entities.lookup(id); ok {
			vectors = append(vectors, e.MentionVector)
		}
	}
	c.Vector = models.Mean(vectors...)
}
