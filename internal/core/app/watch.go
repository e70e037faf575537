package app

import (
	"log/slog"
	"time"

	"cprqa/internal/core/watcher"
)

// StartSchemaWatcher clears the schema cache whenever a schema file under dir
// changes. Definitions reload lazily on next access.
func (a *App) StartSchemaWatcher(dir string) error {
	a.watchMu.Lock()
	debounce := a.Config.Watch.Debounce
	a.watchMu.Unlock()

	w, err := watcher.NewWatcher(
		debounce,
		nil,
		a.Config.Watch.SchemaPatterns,
		a.handleSchemaChanges,
	)
	if err != nil {
		return err
	}
	if err := w.Watch([]string{dir}); err != nil {
		_ = w.Close()
		return err
	}

	a.watchMu.Lock()
	previous := a.activeWatcher
	a.activeWatcher = w
	a.watchMu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}
	slog.Info("schema watcher started", "dir", dir)
	return nil
}

func (a *App) handleSchemaChanges(paths []string) {
	a.schemas.Clear()
	slog.Info("schema files changed, cache cleared", "files", len(paths))
}

// rewatchSchemas moves a running watcher to a new tenant's schema directory.
func (a *App) rewatchSchemas(dir string) {
	a.watchMu.Lock()
	running := a.activeWatcher != nil
	a.watchMu.Unlock()
	if !running {
		return
	}
	if err := a.StartSchemaWatcher(dir); err != nil {
		slog.Warn("schema watcher restart failed", "dir", dir, "error", err)
	}
}

// SetWatchDebounce applies a new debounce window, including to a running watcher.
func (a *App) SetWatchDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	a.Config.Watch.Debounce = d
	if a.activeWatcher != nil {
		a.activeWatcher.SetDebounce(d)
	}
}
