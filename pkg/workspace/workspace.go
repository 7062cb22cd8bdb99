// Package workspace owns the repositories of one eec process and the
// guards that keep them consistent with other processes.
//
// A Workspace is built once at start, handed to every service and closed on
// shutdown. With the file backend each repository is an in-memory copy of a
// JSON snapshot: services run their handlers through one of the guards,
// which reloads stale snapshots before the handler and persists changes
// after it. The SQL backends keep no in-memory state, so their guards hold
// no files and only add tracing and metrics around the handler.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/internal/telemetry"
	"github.com/eecworkbench/eec/pkg/filelock"
	"github.com/eecworkbench/eec/pkg/guard"
	"github.com/eecworkbench/eec/pkg/metrics"
	"github.com/eecworkbench/eec/pkg/snapshot"
	"github.com/eecworkbench/eec/pkg/store"
	"github.com/eecworkbench/eec/pkg/store/filestore"
	"github.com/eecworkbench/eec/pkg/store/sqlstore"
)

// Snapshot repository names, used in logs and metric labels.
const (
	RepoEntities = "entities"
	RepoClusters = "clusters"
	RepoUsers    = "users"
)

// Option configures Open.
type Option func(*options)

type options struct {
	recorder metrics.Recorder
	critical snapshot.CriticalSection
}

// WithRecorder reports lock waits, guard outcomes and snapshot I/O to rec.
func WithRecorder(rec metrics.Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithCriticalSection wraps every snapshot replace in cs, so shutdown
// waits for writes in flight.
func WithCriticalSection(cs snapshot.CriticalSection) Option {
	return func(o *options) { o.critical = cs }
}

// Workspace holds one repository per record type.
type Workspace struct {
	Entities store.EntityRepository
	Clusters store.ClusterRepository
	Users    store.UserRepository

	config   Config
	lockOpts filelock.Options

	// file backend
	entityFile  *snapshot.File
	clusterFile *snapshot.File
	userFile    *snapshot.File
	watcher     *snapshot.Watcher

	// sql backends
	db *sqlstore.Store

	entityGuard *guard.Guard
	dataGuard   *guard.Guard
	userGuard   *guard.Guard
}

// Open builds the repositories for cfg. Nothing is read from the snapshots
// until the first guarded call.
func Open(cfg Config, opts ...Option) (*Workspace, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	w := &Workspace{
		config:   cfg,
		lockOpts: filelock.Options{Timeout: cfg.LockTimeout},
	}

	var err error
	if cfg.Type == BackendFile {
		err = w.openFiles(&o)
	} else {
		err = w.openSQL()
	}
	if err != nil {
		return nil, err
	}

	guardOpts := []guard.Option{guard.WithLockOptions(w.lockOpts), guard.WithRecorder(o.recorder)}
	w.entityGuard = guard.New(w.filesOf(w.entityFile), guardOpts...)
	w.dataGuard = guard.New(w.filesOf(w.entityFile, w.clusterFile), guardOpts...)
	w.userGuard = guard.New(w.filesOf(w.userFile), guardOpts...)

	logger.Info("Workspace opened", logger.KeyBackend, string(cfg.Type), "data_path", w.location())
	return w, nil
}

func (w *Workspace) openFiles(o *options) error {
	if err := os.MkdirAll(w.config.DataPath, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	var fileOpts []snapshot.Option
	if o.recorder != nil {
		fileOpts = append(fileOpts, snapshot.WithObserver(o.recorder))
	}
	if o.critical != nil {
		fileOpts = append(fileOpts, snapshot.WithCriticalSection(o.critical))
	}

	entities := filestore.NewEntityRepository()
	clusters := filestore.NewClusterRepository(entities)
	users := filestore.NewUserRepository()
	w.Entities, w.Clusters, w.Users = entities, clusters, users

	dir := w.config.DataPath
	w.entityFile = snapshot.NewFile(RepoEntities, filepath.Join(dir, filestore.EntitySnapshotName), entities, fileOpts...)
	w.clusterFile = snapshot.NewFile(RepoClusters, filepath.Join(dir, filestore.ClusterSnapshotName), clusters, fileOpts...)
	w.userFile = snapshot.NewFile(RepoUsers, filepath.Join(dir, filestore.UserSnapshotName), users, fileOpts...)

	if w.config.Watch {
		watcher, err := snapshot.NewWatcher(w.entityFile, w.clusterFile, w.userFile)
		if err != nil {
			return err
		}
		w.watcher = watcher
	}
	return nil
}

func (w *Workspace) openSQL() error {
	sc := w.config.sqlConfig()
	db, err := sqlstore.New(&sc)
	if err != nil {
		return err
	}
	w.db = db
	w.Entities, w.Clusters, w.Users = db.Entities(), db.Clusters(), db.Users()
	return nil
}

// filesOf drops the nil files of the SQL backends.
func (w *Workspace) filesOf(files ...*snapshot.File) []*snapshot.File {
	out := make([]*snapshot.File, 0, len(files))
	for _, f := range files {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (w *Workspace) location() string {
	switch w.config.Type {
	case BackendFile:
		return w.config.DataPath
	case BackendSQLite:
		return w.config.SQLite.Path
	default:
		return w.config.Postgres.Host
	}
}

// Backend returns the configured backend.
func (w *Workspace) Backend() Backend { return w.config.Type }

// EntityGuard guards requests touching entities only.
func (w *Workspace) EntityGuard() *guard.Guard { return w.entityGuard }

// DataGuard guards requests touching entities and clusters together.
func (w *Workspace) DataGuard() *guard.Guard { return w.dataGuard }

// UserGuard guards requests touching users.
func (w *Workspace) UserGuard() *guard.Guard { return w.userGuard }

// Files returns the snapshot files, empty for the SQL backends.
func (w *Workspace) Files() []*snapshot.File {
	return w.filesOf(w.entityFile, w.clusterFile, w.userFile)
}

// Check audits the entity/cluster invariant under the data guard.
func (w *Workspace) Check(ctx context.Context) ([]store.Violation, error) {
	var violations []store.Violation
	err := w.dataGuard.Do(ctx, func(ctx context.Context) error {
		var err error
		violations, err = store.Check(ctx, w.Entities, w.Clusters)
		return err
	})
	return violations, err
}

// Bootstrap ensures an administrator exists, under the user guard.
func (w *Workspace) Bootstrap(ctx context.Context, adminPassword string) (*store.BootstrapResult, error) {
	var res *store.BootstrapResult
	err := w.userGuard.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = store.Bootstrap(ctx, w.Users, adminPassword)
		return err
	})
	return res, err
}

// Watch forwards filesystem hints until ctx is done. It returns at once
// when watching is disabled.
func (w *Workspace) Watch(ctx context.Context) error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Run(ctx)
}

// Healthcheck verifies the backend is reachable.
func (w *Workspace) Healthcheck(ctx context.Context) error {
	if w.db != nil {
		return w.db.Healthcheck(ctx)
	}
	info, err := os.Stat(w.config.DataPath)
	if err != nil {
		return fmt.Errorf("data path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", w.config.DataPath)
	}
	return nil
}

// Close writes repositories left dirty by a failed persist, then releases
// the backend. A snapshot that another process changed since it was last
// read is not overwritten; its unsaved changes are dropped with a warning.
func (w *Workspace) Close(ctx context.Context) error {
	if w.db != nil {
		return w.db.Close()
	}
	return w.finalSave(ctx)
}

func (w *Workspace) finalSave(ctx context.Context) (err error) {
	var dirty []*snapshot.File
	for _, f := range w.Files() {
		if f.Repository().Dirty() {
			dirty = append(dirty, f)
		}
	}
	if len(dirty) == 0 {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFinalSave)
	defer func() { telemetry.EndSpan(span, err) }()

	paths := make([]string, len(dirty))
	for i, f := range dirty {
		paths[i] = f.Path()
	}
	set, err := filelock.AcquireAll(ctx, w.lockOpts, paths...)
	if err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	defer func() { err = errors.Join(err, set.Release()) }()

	var errs []error
	for _, f := range dirty {
		changed, cerr := f.ChangedOnDisk()
		if cerr != nil {
			errs = append(errs, cerr)
			continue
		}
		if changed {
			logger.WarnCtx(ctx, "Snapshot changed by another process, dropping unsaved changes", logger.File(f.Path()))
			continue
		}
		if serr := f.Save(ctx); serr != nil {
			errs = append(errs, serr)
			continue
		}
		logger.InfoCtx(ctx, "Saved pending changes", logger.File(f.Path()))
	}
	return errors.Join(errs...)
}
