package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/storage"
)

// rescanDelay debounces the full rescan that follows a rename.
const rescanDelay = 200 * time.Millisecond

// Watch follows the store directory with fsnotify and folds external edits
// of <key>.json files back into idx until ctx is cancelled. Records that
// match the in-memory copy are ignored, so the engine's own writes are
// no-ops. The note index reports resulting changes through its OnChange
// callback.
func Watch(ctx context.Context, idx *notes.Index, dir string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", dir))

	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time
	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(rescanDelay)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(rescanDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rescanCh:
			rescan(idx, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key, isNote := storage.KeyFromPath(ev.Name)
			if !isNote {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				reload(idx, key, logger)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if _, statErr := os.Stat(ev.Name); statErr == nil {
					continue
				}
				forget(idx, key, logger)
				if ev.Op&fsnotify.Rename != 0 {
					scheduleRescan()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reload(idx *notes.Index, key string, logger *slog.Logger) {
	n, err := idx.Store().Load(key)
	if errors.Is(err, apperr.ErrNotFound) {
		return
	}
	if err != nil {
		// Usually a half-written file from an external editor; the next
		// write event retries.
		logger.Warn("watcher: load failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	apply(idx, key, n, logger)
}

// apply reloads n and writes the index copy back when the reload turned it
// into a pending edit, so the push mark survives a restart.
func apply(idx *notes.Index, key string, n *models.Note, logger *slog.Logger) {
	if !idx.Reload(key, n) {
		return
	}
	logger.Debug("watcher: reloaded", slog.String("key", key))
	cur, err := idx.Get(key)
	if err != nil || cur.Equal(n) {
		return
	}
	if err := idx.Save(key); err != nil {
		logger.Warn("watcher: save failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func forget(idx *notes.Index, key string, logger *slog.Logger) {
	removed := false
	_ = idx.Exclusive(func(tx *notes.Tx) error {
		if tx.Has(key) {
			tx.Remove(key)
			removed = true
		}
		return nil
	})
	if removed {
		logger.Debug("watcher: removed", slog.String("key", key))
	}
}

// rescan reloads every note file, picking up files renamed into the store.
func rescan(idx *notes.Index, logger *slog.Logger) {
	all, err := idx.Store().LoadAll()
	if err != nil {
		logger.Warn("watcher: rescan failed", slog.String("error", err.Error()))
		return
	}
	for key, n := range all {
		apply(idx, key, n, logger)
	}
}
