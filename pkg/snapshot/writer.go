package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFile atomically replaces path with data and returns the modification
// time of the new file.
//
// The data is written to a temporary file in the same directory (so the
// final rename never crosses a volume), synced, and renamed over path.
// Readers observe either the previous document or the new one, never a
// truncated file. If writing the temporary file fails the target is left
// untouched and the temporary file is removed.
func WriteFile(path string, data []byte, perm os.FileMode) (time.Time, error) {
	info, err := replace(path, data, perm)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// replace is WriteFile returning the full stat of the new file.
func replace(path string, data []byte, perm os.FileMode) (os.FileInfo, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, data, perm); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("replace %s: %w", path, err)
	}
	syncDir(dir)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}

func writeAndSync(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

// syncDir flushes the directory entry so the rename survives a crash.
// Not every platform allows opening a directory for sync; failures are
// ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
