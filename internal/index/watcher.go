package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/recall/internal/checksum"
	"github.com/starford/recall/internal/storage"
)

// ChangeKind describes an index mutation made by the watcher.
type ChangeKind string

const (
	Created ChangeKind = "created"
	Updated ChangeKind = "updated"
	Deleted ChangeKind = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind ChangeKind, path string)

// settleDelay coalesces the burst of write events editors emit on save and
// the Remove+Create pairs of renames.
const settleDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and keeps the index in
// step with the files until ctx is cancelled. It calls cb (if non-nil) after
// each index mutation.
//
// Changed paths are collected and indexed once they have been quiet for a
// short delay. New directories are added to the watch list; hidden
// directories and temporary files are ignored.
func Watch(ctx context.Context, db Writer, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", vaultRoot))

	pending := make(map[string]struct{})
	reconcile := false
	timer := time.NewTimer(settleDelay)
	timer.Stop()

	schedule := func() {
		timer.Reset(settleDelay)
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("watcher: stopped")
			return nil

		case <-timer.C:
			for rel := range pending {
				applyChange(db, store, vaultRoot, rel, logger, cb)
			}
			clear(pending)
			if reconcile {
				reconcile = false
				reconcileIndex(db, store, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(vaultRoot, ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may have landed before the directory was watched.
					reconcile = true
					schedule()
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(vaultRoot, ev.Name)
			if relErr != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			if ev.Op&fsnotify.Rename != 0 {
				// The new name may arrive as a Create outside our view.
				reconcile = true
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// applyChange indexes rel if it exists on disk and removes it otherwise.
func applyChange(db Writer, store storage.Provider, vaultRoot, rel string, logger *slog.Logger, cb EventCallback) {
	info, statErr := os.Stat(filepath.Join(vaultRoot, filepath.FromSlash(rel)))
	if statErr != nil {
		cs, _ := db.GetChecksum(rel)
		if cs == "" {
			return
		}
		if err := db.DeleteNote(rel); err != nil {
			logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		logger.Debug("watcher: deleted", slog.String("path", rel))
		notify(cb, Deleted, rel)
		return
	}

	data, err := store.Read(rel)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	prev, _ := db.GetChecksum(rel)
	if prev == checksum.Sum(data) {
		// Already indexed, e.g. written by a review.
		return
	}
	if err := IndexFile(db, rel, data, info.ModTime()); err != nil {
		logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	kind := Updated
	if prev == "" {
		kind = Created
	}
	logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", string(kind)))
	notify(cb, kind, rel)
}

// reconcileIndex removes index entries whose files are gone and indexes
// files the index has not seen or that changed.
func reconcileIndex(db Writer, store storage.Provider, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		prev, seen := checksums[m.Path]
		if prev == m.Checksum {
			continue
		}
		data, readErr := store.Read(m.Path)
		if readErr != nil {
			continue
		}
		if idxErr := IndexFile(db, m.Path, data, m.UpdatedAt); idxErr != nil {
			continue
		}
		kind := Updated
		if !seen {
			kind = Created
		}
		logger.Debug("reconcile: indexed", slog.String("path", m.Path))
		notify(cb, kind, m.Path)
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if delErr := db.DeleteNote(p); delErr == nil {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
			notify(cb, Deleted, p)
		}
	}
}

func notify(cb EventCallback, kind ChangeKind, path string) {
	if cb != nil {
		cb(kind, path)
	}
}

// ignored reports whether p lies in a hidden directory or is a hidden or
// temporary file.
func ignored(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
