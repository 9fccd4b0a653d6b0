// Package watcher polls a fixed set of files for modification-time
// changes. Bot instances use it to hot-reload their command files.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// Replaceable for testing.
var statFile = os.Stat

// Watcher polls files for mtime changes and signals on a channel.
type Watcher struct {
	paths    []string
	interval time.Duration
	mtimes   map[string]time.Time
}

// New creates a Watcher for paths, polled every interval.
func New(interval time.Duration, paths ...string) *Watcher {
	return &Watcher{
		paths:    paths,
		interval: interval,
		mtimes:   make(map[string]time.Time),
	}
}

// Run sends on changes whenever a watched file is modified, created or
// removed. The first snapshot emits nothing. Run blocks until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context, changes chan<- string) {
	slog.Info("watcher started",
		"component", "watcher",
		"operation", "run",
		"files", len(w.paths),
		"interval", w.interval,
	)

	w.mtimes = w.snapshot()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped", "component", "watcher", "operation", "run")
			return
		case <-ticker.C:
			w.poll(changes)
		}
	}
}

// poll emits at most one event per tick: the first changed path.
func (w *Watcher) poll(changes chan<- string) {
	current := w.snapshot()
	defer func() { w.mtimes = current }()

	changed := ""
	for _, p := range w.paths {
		before, had := w.mtimes[p]
		now, has := current[p]
		if had != has || !before.Equal(now) {
			changed = p
			break
		}
	}
	if changed == "" {
		return
	}

	slog.Info("file change detected",
		"component", "watcher",
		"operation", "detect_change",
		"file", changed,
	)
	// Non-blocking: a pending event already covers this change.
	select {
	case changes <- changed:
	default:
	}
}

// snapshot maps each existing path to its mtime. Missing files are left
// out; other stat failures are logged and treated as missing.
func (w *Watcher) snapshot() map[string]time.Time {
	mtimes := make(map[string]time.Time, len(w.paths))
	for _, p := range w.paths {
		info, err := statFile(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to stat watched file",
					"component", "watcher",
					"operation", "snapshot",
					"file", p,
					"error", err,
				)
			}
			continue
		}
		mtimes[p] = info.ModTime()
	}
	return mtimes
}
