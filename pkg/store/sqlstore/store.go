// Package sqlstore implements the store repositories on GORM, backed by
// SQLite or PostgreSQL.
//
// Membership lives in a single column (entities.cluster_id); a cluster's
// member list is derived from it, so the bidirectional invariant holds by
// construction. Multi-row mutations run in one transaction.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// counter keeps the last minted numeric id per table.
type counter struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64  `gorm:"not null"`
}

func (counter) TableName() string { return "id_counters" }

// Store owns the database connection and hands out repositories over it.
type Store struct {
	db     *gorm.DB
	config *Config
}

// New opens the database and migrates the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if !config.inMemory() {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(config.sqliteDSN())
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch {
	case config.inMemory():
		// every connection to :memory: opens a separate database
		sqlDB.SetMaxOpenConns(1)
	case config.Type == DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(&models.Entity{}, &models.Cluster{}, &models.User{}, &counter{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &Store{db: db, config: config}, nil
}

// DB returns the underlying GORM connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Healthcheck pings the database.
func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Entities returns the entity repository.
func (s *Store) Entities() *EntityRepository { return &EntityRepository{db: s.db} }

// Clusters returns the cluster repository.
func (s *Store) Clusters() *ClusterRepository { return &ClusterRepository{db: s.db} }

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{db: s.db} }

var (
	_ store.EntityRepository  = (*EntityRepository)(nil)
	_ store.ClusterRepository = (*ClusterRepository)(nil)
	_ store.UserRepository    = (*UserRepository)(nil)
)

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to notFoundErr.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return dbError(err)
}

// dbError classifies driver failures as I/O failures. Domain errors pass
// through unchanged.
func dbError(err error) error {
	var rec *models.RecordError
	if err == nil || errors.As(err, &rec) || errors.Is(err, models.ErrIOFailure) {
		return err
	}
	return models.IOError("database", "", err)
}

// getByField retrieves a single record of type T by matching field=value.
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// listAll retrieves all records of type T ordered by order. Returns an
// empty slice, never nil.
func listAll[T any](db *gorm.DB, ctx context.Context, order string) ([]*T, error) {
	results := []*T{}
	if err := db.WithContext(ctx).Order(order).Find(&results).Error; err != nil {
		return nil, dbError(err)
	}
	return results, nil
}

// exists reports whether a row of T matches field=value.
func exists[T any](tx *gorm.DB, field string, value any) (bool, error) {
	var n int64
	var zero T
	if err := tx.Model(&zero).Where(field+" = ?", value).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// nextID advances the named counter inside tx until it yields an id that
// taken rejects.
func nextID(tx *gorm.DB, name string, taken func(id string) (bool, error)) (string, error) {
	c := counter{Name: name}
	if err := tx.FirstOrCreate(&c, counter{Name: name}).Error; err != nil {
		return "", err
	}
	for {
		c.Value++
		id := fmt.Sprint(c.Value)
		used, err := taken(id)
		if err != nil {
			return "", err
		}
		if used {
			continue
		}
		if err := tx.Model(&counter{}).Where("name = ?", name).Update("value", c.Value).Error; err != nil {
			return "", err
		}
		return id, nil
	}
}
