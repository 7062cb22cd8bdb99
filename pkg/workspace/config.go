package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eecworkbench/eec/pkg/store/sqlstore"
)

// Backend selects where repositories live.
type Backend string

const (
	// BackendFile keeps repositories in memory, persisted as JSON snapshots
	// shared between processes through file locks (default).
	BackendFile Backend = "file"

	// BackendSQLite and BackendPostgres store repositories in a database.
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config configures the repositories of a workspace.
type Config struct {
	// Type is the backend: file, sqlite or postgres.
	Type Backend `mapstructure:"type" validate:"required,oneof=file sqlite postgres" yaml:"type"`

	// DataPath is the directory holding the JSON snapshots and their lock
	// sidecars (file backend).
	// Default: $XDG_DATA_HOME/eec/data
	DataPath string `mapstructure:"data_path" yaml:"data_path"`

	// LockTimeout bounds the wait for snapshot locks. Zero waits until the
	// request is cancelled.
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"gte=0" yaml:"lock_timeout"`

	// Watch enables filesystem notifications as reload hints.
	Watch bool `mapstructure:"watch" yaml:"watch"`

	SQLite   sqlstore.SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres sqlstore.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// ApplyDefaults fills in missing values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = BackendFile
	}
	if c.Type == BackendFile && c.DataPath == "" {
		c.DataPath = filepath.Join(dataHome(), "eec", "data")
	}
	if c.Type != BackendFile {
		sc := c.sqlConfig()
		sc.ApplyDefaults()
		c.SQLite, c.Postgres = sc.SQLite, sc.Postgres
	}
}

// Validate checks that the selected backend is fully configured.
func (c *Config) Validate() error {
	switch c.Type {
	case BackendFile:
		if c.DataPath == "" {
			return fmt.Errorf("data path is required")
		}
		return nil
	case BackendSQLite, BackendPostgres:
		sc := c.sqlConfig()
		return sc.Validate()
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Type)
	}
}

func (c *Config) sqlConfig() sqlstore.Config {
	return sqlstore.Config{
		Type:     sqlstore.DatabaseType(c.Type),
		SQLite:   c.SQLite,
		Postgres: c.Postgres,
	}
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}
