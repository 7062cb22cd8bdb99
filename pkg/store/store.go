// Package store defines the repository interfaces of the workbench.
//
// Two implementations exist:
//   - filestore: in-memory repositories persisted as JSON snapshots, shared
//     between processes through file locks
//   - sqlstore: GORM over SQLite or PostgreSQL
//
// Every mutation either applies all of its invariant-preserving side effects
// or none. Errors wrap the kinds declared in pkg/models (ErrNotFound,
// ErrAlreadyExists, ErrAlreadyInCluster, ErrConflict, ErrIOFailure).
//
// The filestore implementations are not safe for concurrent use on their
// own; callers serialize access through the request guard.
package store

import (
	"context"

	"github.com/eecworkbench/eec/pkg/models"
)

// EntityRepository manages entities.
type EntityRepository interface {
	// AddEntity stores e. An empty ID is minted from the id counter.
	// Returns ErrAlreadyExists when the id or the (source, source_id) pair
	// is taken. The entity is always stored without a cluster.
	AddEntity(ctx context.Context, e *models.Entity) (*models.Entity, error)

	// UpdateEntity replaces mention, source, source id and vector of an
	// unclustered entity. Returns ErrNotFound, ErrConflict when the entity
	// is in a cluster, or ErrAlreadyExists when the new source pair is taken.
	UpdateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error)

	// DeleteEntity removes an entity. Returns ErrNotFound, or ErrConflict
	// while the entity belongs to a cluster.
	DeleteEntity(ctx context.Context, id string) error

	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	GetEntityBySourceID(ctx context.Context, source, sourceID string) (*models.Entity, error)
	ListEntities(ctx context.Context) ([]*models.Entity, error)
	ListEntitiesBySource(ctx context.Context, source string) ([]*models.Entity, error)

	// RandomUnlabeled picks uniformly among entities without a cluster.
	// Returns ErrNotFound when none remain.
	RandomUnlabeled(ctx context.Context) (*models.Entity, error)

	// RandomUnlabeledN returns up to n distinct unlabeled entities in random
	// order. Returns ErrNotFound when none remain.
	RandomUnlabeledN(ctx context.Context, n int) ([]*models.Entity, error)
}

// ClusterRepository manages clusters and the membership of entities.
type ClusterRepository interface {
	// AddCluster stores an empty cluster. An empty ID is minted from the
	// cluster counter. Returns ErrAlreadyExists on a taken id.
	AddCluster(ctx context.Context, c *models.Cluster) (*models.Cluster, error)

	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	ListClusters(ctx context.Context) ([]*models.Cluster, error)

	// DeleteCluster removes an empty cluster. Returns ErrNotFound, or
	// ErrConflict while members remain.
	DeleteCluster(ctx context.Context, id string) error

	// DeleteClusters removes several clusters. Every id is checked first;
	// nothing is deleted if any check fails.
	DeleteClusters(ctx context.Context, ids []string) error

	// DeleteAllClusters removes every cluster. Returns ErrConflict, deleting
	// nothing, if any cluster still has members.
	DeleteAllClusters(ctx context.Context) error

	// AddEntityToCluster attaches an entity: the entity's cluster id is set,
	// the member set gains the entity and the cluster vector is recomputed.
	// Returns ErrNotFound when either side is missing and
	// ErrAlreadyInCluster when the entity already has a cluster.
	AddEntityToCluster(ctx context.Context, clusterID, entityID string) (*models.Cluster, error)

	// AddEntitiesToCluster attaches several entities, all or nothing.
	AddEntitiesToCluster(ctx context.Context, clusterID string, entityIDs []string) (*models.Cluster, error)

	// RemoveEntityFromCluster detaches an entity from the given cluster and
	// recomputes the vector. Returns ErrNotFound unless the entity is a
	// member of that cluster.
	RemoveEntityFromCluster(ctx context.Context, clusterID, entityID string) (*models.Cluster, error)
}

// UserRepository manages workbench accounts.
type UserRepository interface {
	// AddUser creates a user with a fresh id. Returns ErrAlreadyExists on a
	// taken username.
	AddUser(ctx context.Context, username, hashedPassword string, scopes models.Scopes) (*models.User, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// ChangeUsername returns ErrNotFound or ErrAlreadyExists on collision.
	ChangeUsername(ctx context.Context, id, username string) (*models.User, error)
	ChangePassword(ctx context.Context, id, hashedPassword string) (*models.User, error)
	ChangeScopes(ctx context.Context, id string, scopes models.Scopes) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}
