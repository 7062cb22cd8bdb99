package sqlstore

import (
	"context"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eecworkbench/eec/pkg/models"
)

// ClusterRepository stores clusters in the clusters table. Members are the
// entities whose cluster_id points at the cluster.
type ClusterRepository struct {
	db *gorm.DB
}

// withMembers fills EntityIDs of every cluster in cs, ordered by entity id.
func withMembers(tx *gorm.DB, cs ...*models.Cluster) error {
	if len(cs) == 0 {
		return nil
	}
	byID := make(map[string]*models.Cluster, len(cs))
	ids := make([]string, len(cs))
	for i, c := range cs {
		c.EntityIDs = []string{}
		byID[c.ID] = c
		ids[i] = c.ID
	}

	var rows []struct {
		ID        string
		ClusterID string
	}
	err := tx.Model(&models.Entity{}).Select("id, cluster_id").
		Where("cluster_id IN ?", ids).Order("id").Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		if c, ok := byID[row.ClusterID]; ok {
			c.EntityIDs = append(c.EntityIDs, row.ID)
		}
	}
	return nil
}

func findCluster(tx *gorm.DB, id string) (*models.Cluster, error) {
	var c models.Cluster
	if err := tx.Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, convertNotFoundError(err, models.NotFound(models.ResourceCluster, id))
	}
	return &c, nil
}

// lockCluster loads the cluster for a membership change. On PostgreSQL the
// row stays locked until the transaction ends, so concurrent changes to one
// cluster serialize and each recompute sees every committed member. SQLite
// serializes writers on its own.
func lockCluster(tx *gorm.DB, id string) (*models.Cluster, error) {
	if tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return findCluster(tx, id)
}

// recompute reloads the members of c and stores the mean of their vectors.
func recompute(tx *gorm.DB, c *models.Cluster) error {
	var members []*models.Entity
	if err := tx.Where("cluster_id = ?", c.ID).Order("id").Find(&members).Error; err != nil {
		return err
	}
	c.EntityIDs = make([]string, len(members))
	vectors := make([]models.Vector, len(members))
	for i, e := range members {
		c.EntityIDs[i] = e.ID
		vectors[i] = e.MentionVector
	}
	c.Vector = models.Mean(vectors...)
	return tx.Save(c).Error
}

// AddCluster implements store.ClusterRepository.
func (r *ClusterRepository) AddCluster(ctx context.Context, c *models.Cluster) (*models.Cluster, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, models.Invalid(models.ResourceCluster, c.ID, "cluster_name is required")
	}
	stored := &models.Cluster{ID: c.ID, Name: c.Name, EntityIDs: []string{}, Vector: models.Vector{}}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if stored.ID != "" {
			taken, err := exists[models.Cluster](tx, "id", stored.ID)
			if err != nil {
				return err
			}
			if taken {
				return models.AlreadyExists(models.ResourceCluster, stored.ID, "")
			}
		} else {
			id, err := nextID(tx, "clusters", func(id string) (bool, error) {
				return exists[models.Cluster](tx, "id", id)
			})
			if err != nil {
				return err
			}
			stored.ID = id
		}
		if err := tx.Create(stored).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.AlreadyExists(models.ResourceCluster, stored.ID, "")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, dbError(err)
	}
	return stored, nil
}

// GetCluster implements store.ClusterRepository.
func (r *ClusterRepository) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	db := r.db.WithContext(ctx)
	c, err := findCluster(db, id)
	if err != nil {
		return nil, dbError(err)
	}
	if err := withMembers(db, c); err != nil {
		return nil, dbError(err)
	}
	return c, nil
}

// ListClusters implements store.ClusterRepository.
func (r *ClusterRepository) ListClusters(ctx context.Context) ([]*models.Cluster, error) {
	cs, err := listAll[models.Cluster](r.db, ctx, "id")
	if err != nil {
		return nil, err
	}
	if err := withMembers(r.db.WithContext(ctx), cs...); err != nil {
		return nil, dbError(err)
	}
	return cs, nil
}

// checkDeletable fails unless every cluster in ids exists and has no members.
func checkDeletable(tx *gorm.DB, ids []string) error {
	for _, id := range ids {
		if _, err := lockCluster(tx, id); err != nil {
			return err
		}
		populated, err := exists[models.Entity](tx, "cluster_id", id)
		if err != nil {
			return err
		}
		if populated {
			return models.Conflict(models.ResourceCluster, id, "cluster still has members")
		}
	}
	return nil
}

// DeleteCluster implements store.ClusterRepository.
func (r *ClusterRepository) DeleteCluster(ctx context.Context, id string) error {
	return r.DeleteClusters(ctx, []string{id})
}

// DeleteClusters implements store.ClusterRepository.
func (r *ClusterRepository) DeleteClusters(ctx context.Context, ids []string) error {
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkDeletable(tx, ids); err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Cluster{}).Error
	})
	return dbError(err)
}

// DeleteAllClusters implements store.ClusterRepository.
func (r *ClusterRepository) DeleteAllClusters(ctx context.Context) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.Entity
		res := tx.Select("id, cluster_id").Where("cluster_id IS NOT NULL").Order("cluster_id").Limit(1).Find(&member)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return models.Conflict(models.ResourceCluster, member.ClusterIDOrEmpty(), "cluster still has members")
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Cluster{}).Error
	})
	return dbError(err)
}

// AddEntityToCluster implements store.ClusterRepository.
func (r *ClusterRepository) AddEntityToCluster(ctx context.Context, clusterID, entityID string) (*models.Cluster, error) {
	return r.AddEntitiesToCluster(ctx, clusterID, []string{entityID})
}

// AddEntitiesToCluster implements store.ClusterRepository.
func (r *ClusterRepository) AddEntitiesToCluster(ctx context.Context, clusterID string, entityIDs []string) (*models.Cluster, error) {
	ids := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	var c *models.Cluster
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = lockCluster(tx, clusterID); err != nil {
			return err
		}

		var found []*models.Entity
		if err := tx.Select("id, cluster_id").Where("id IN ?", ids).Find(&found).Error; err != nil {
			return err
		}
		byID := make(map[string]*models.Entity, len(found))
		for _, e := range found {
			byID[e.ID] = e
		}
		for _, id := range ids {
			e, ok := byID[id]
			if !ok {
				return models.NotFound(models.ResourceEntity, id)
			}
			if e.HasCluster() {
				return models.AlreadyInCluster(id, *e.ClusterID)
			}
		}

		if len(ids) > 0 {
			res := tx.Model(&models.Entity{}).Where("id IN ? AND cluster_id IS NULL", ids).Update("cluster_id", clusterID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(ids)) {
				return models.Conflict(models.ResourceCluster, clusterID, "entities were attached concurrently")
			}
		}
		return recompute(tx, c)
	})
	if err != nil {
		return nil, dbError(err)
	}
	return c, nil
}

// RemoveEntityFromCluster implements store.ClusterRepository.
func (r *ClusterRepository) RemoveEntityFromCluster(ctx context.Context, clusterID, entityID string) (*models.Cluster, error) {
	var c *models.Cluster
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = lockCluster(tx, clusterID); err != nil {
			return err
		}
		res := tx.Model(&models.Entity{}).Where("id = ? AND cluster_id = ?", entityID, clusterID).Update("cluster_id", nil)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.RecordError{
				Kind:     models.ErrNotFound,
				Resource: models.ResourceEntity,
				ID:       entityID,
				Reason:   "not a member of cluster " + clusterID,
			}
		}
		return recompute(tx, c)
	})
	if err != nil {
		return nil, dbError(err)
	}
	return c, nil
}
