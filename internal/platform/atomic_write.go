package platform

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Replaceable for testing error paths.
var (
	osMkdirAll   = os.MkdirAll
	osCreateTemp = os.CreateTemp
	osChmod      = os.Chmod
	osRename     = os.Rename
	fileSync     = func(f *os.File) error { return f.Sync() }
	fileClose    = func(f *os.File) error { return f.Close() }
)

// AtomicWrite replaces path with data. The bytes land in a synced temp
// file in the same directory first, so readers see the old content or the
// new one and never a mix. Missing parent directories are created.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := osMkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomic write: mkdir: %w", err)
	}

	tmp, err := osCreateTemp(dir, ".switchboard-tmp-*")
	if err != nil {
		return fmt.Errorf("atomic write: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	_, writeErr := tmp.Write(data)
	var syncErr error
	if writeErr == nil {
		syncErr = fileSync(tmp)
	}
	closeErr := fileClose(tmp)
	switch {
	case writeErr != nil:
		return fmt.Errorf("atomic write: write: %w", writeErr)
	case syncErr != nil:
		return fmt.Errorf("atomic write: sync: %w", syncErr)
	case closeErr != nil:
		return fmt.Errorf("atomic write: close: %w", closeErr)
	}

	if err := osChmod(tmpName, perm); err != nil {
		return fmt.Errorf("atomic write: chmod: %w", err)
	}
	if err := osRename(tmpName, path); err != nil {
		return fmt.Errorf("atomic write: rename: %w", err)
	}

	success = true
	slog.Debug("file written", "component", "platform", "operation", "atomic_write", "path", path, "bytes", len(data))
	return nil
}
