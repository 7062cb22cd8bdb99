package snapshot

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/eecworkbench/eec/internal/logger"
)

// Watcher forwards filesystem events on snapshot files as staleness hints.
//
// Atomic writers replace the file by rename, so the parent directories are
// watched rather than the files themselves. Events caused by this process's
// own writes also produce hints, which only cost one extra reload.
type Watcher struct {
	w     *fsnotify.Watcher
	files map[string]*File
}

// NewWatcher watches the directories containing files.
func NewWatcher(files ...*File) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{w: fw, files: make(map[string]*File, len(files))}
	dirs := make(map[string]struct{})
	for _, f := range files {
		w.files[f.Path()] = f
		dirs[filepath.Dir(f.Path())] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run delivers hints until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.w.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if f, ok := w.files[filepath.Clean(ev.Name)]; ok {
				f.Hint()
				logger.Debug("snapshot change hint", logger.File(ev.Name), "op", ev.Op.String())
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("snapshot watcher error", logger.Err(err))
		}
	}
}
