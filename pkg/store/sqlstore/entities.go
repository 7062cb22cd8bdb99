package sqlstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/eecworkbench/eec/pkg/models"
)

// EntityRepository stores entities in the entities table.
type EntityRepository struct {
	db *gorm.DB
}

func sourceOwner(tx *gorm.DB, key models.SourceKey) (string, error) {
	var other models.Entity
	err := tx.Select("id").Where("source = ? AND source_id = ?", key.Source, key.SourceID).Take(&other).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return other.ID, err
}

// AddEntity implements store.EntityRepository.
func (r *EntityRepository) AddEntity(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	stored := e.Clone()
	stored.ClusterID = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if stored.ID != "" {
			taken, err := exists[models.Entity](tx, "id", stored.ID)
			if err != nil {
				return err
			}
			if taken {
				return models.AlreadyExists(models.ResourceEntity, stored.ID, "")
			}
		}
		owner, err := sourceOwner(tx, stored.SourceKey())
		if err != nil {
			return err
		}
		if owner != "" {
			return models.AlreadyExists(models.ResourceEntity, stored.ID, "source "+stored.SourceKey().String()+" used by entity "+owner)
		}
		if stored.ID == "" {
			stored.ID, err = nextID(tx, "entities", func(id string) (bool, error) {
				return exists[models.Entity](tx, "id", id)
			})
			if err != nil {
				return err
			}
		}
		if err := tx.Create(stored).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.AlreadyExists(models.ResourceEntity, stored.ID, "")
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

// UpdateEntity implements store.EntityRepository.
func (r *EntityRepository) UpdateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	var cur models.Entity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", e.ID).Take(&cur).Error; err != nil {
			return convertNotFoundError(err, models.NotFound(models.ResourceEntity, e.ID))
		}
		if cur.HasCluster() {
			return models.Conflict(models.ResourceEntity, e.ID, "entity is in a cluster and cannot be updated")
		}
		if err := e.Validate(); err != nil {
			return err
		}
		owner, err := sourceOwner(tx, e.SourceKey())
		if err != nil {
			return err
		}
		if owner != "" && owner != e.ID {
			return models.AlreadyExists(models.ResourceEntity, e.ID, "source "+e.SourceKey().String()+" used by entity "+owner)
		}

		cur.Mention = e.Mention
		cur.Source = e.Source
		cur.SourceID = e.SourceID
		cur.MentionVector = e.MentionVector.Clone()
		if err := tx.Save(&cur).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.AlreadyExists(models.ResourceEntity, e.ID, "")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, dbError(err)
	}
	return &cur, nil
}

// DeleteEntity implements store.EntityRepository.
func (r *EntityRepository) DeleteEntity(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e models.Entity
		if err := tx.Where("id = ?", id).Take(&e).Error; err != nil {
			return convertNotFoundError(err, models.NotFound(models.ResourceEntity, id))
		}
		if e.HasCluster() {
			return models.Conflict(models.ResourceEntity, id, "entity is in cluster "+*e.ClusterID)
		}
		// the cluster_id guard catches an attach that raced the check above
		res := tx.Where("id = ? AND cluster_id IS NULL", id).Delete(&models.Entity{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.Conflict(models.ResourceEntity, id, "entity was attached concurrently")
		}
		return nil
	})
	return dbError(err)
}

// GetEntity implements store.EntityRepository.
func (r *EntityRepository) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	return getByField[models.Entity](r.db, ctx, "id", id, models.NotFound(models.ResourceEntity, id))
}

// GetEntityBySourceID implements store.EntityRepository.
func (r *EntityRepository) GetEntityBySourceID(ctx context.Context, source, sourceID string) (*models.Entity, error) {
	key := models.SourceKey{Source: source, SourceID: sourceID}
	var e models.Entity
	err := r.db.WithContext(ctx).Where("source = ? AND source_id = ?", source, sourceID).Take(&e).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.NotFound(models.ResourceEntity, key.String()))
	}
	return &e, nil
}

// ListEntities implements store.EntityRepository.
func (r *EntityRepository) ListEntities(ctx context.Context) ([]*models.Entity, error) {
	return listAll[models.Entity](r.db, ctx, "id")
}

// ListEntitiesBySource implements store.EntityRepository.
func (r *EntityRepository) ListEntitiesBySource(ctx context.Context, source string) ([]*models.Entity, error) {
	out := []*models.Entity{}
	if err := r.db.WithContext(ctx).Where("source = ?", source).Order("id").Find(&out).Error; err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

// RandomUnlabeled implements store.EntityRepository.
func (r *EntityRepository) RandomUnlabeled(ctx context.Context) (*models.Entity, error) {
	var e models.Entity
	err := r.db.WithContext(ctx).Where("cluster_id IS NULL").Order("RANDOM()").Take(&e).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.NotFound(models.ResourceEntity, "unlabeled"))
	}
	return &e, nil
}

// RandomUnlabeledN implements store.EntityRepository.
func (r *EntityRepository) RandomUnlabeledN(ctx context.Context, n int) ([]*models.Entity, error) {
	db := r.db.WithContext(ctx)
	var available int64
	if err := db.Model(&models.Entity{}).Where("cluster_id IS NULL").Count(&available).Error; err != nil {
		return nil, dbError(err)
	}
	if available == 0 {
		return nil, models.NotFound(models.ResourceEntity, "unlabeled")
	}

	out := []*models.Entity{}
	if n <= 0 {
		return out, nil
	}
	if err := db.Where("cluster_id IS NULL").Order("RANDOM()").Limit(n).Find(&out).Error; err != nil {
		return nil, dbError(err)
	}
	return out, nil
}
