// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last change to a file.
const DefaultDebounce = 250 * time.Millisecond

// WatchHandler receives the outcome of each re-migration.
type WatchHandler func(fr *FileResult, err error)

// Watch re-migrates matching files under dir whenever they change.
//
// Description:
//
//	Watches dir and its subdirectories (new ones included) with fsnotify.
//	Create and write events for matching, non-generated files are collected
//	until no further change arrives for the debounce window, then the files
//	are migrated in path order. Events, timer and migrations all run on the
//	calling goroutine, so at most one migration runs at a time.
//
//	Watch uses the real file system regardless of WithFs.
//
// Inputs:
//   - ctx: Watch returns nil when ctx is cancelled.
//   - dir: Root directory.
//   - pattern: File name pattern; empty uses the configured pattern.
//   - fn: Called after each file migration. May be nil.
//
// Outputs:
//   - error: Setup failures, ErrDirectoryNotFound, or a watcher that closed
//     unexpectedly.
func (m *Migrator) Watch(ctx context.Context, dir, pattern string, fn WatchHandler) error {
	re, err := m.matcher(pattern)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchTree(watcher, dir); err != nil {
		return err
	}
	m.logger.Info("watching for legacy constraint changes",
		slog.String("dir", dir),
		slog.String("pattern", re.String()),
		slog.Duration("debounce", m.debounce),
	)

	pending := map[string]struct{}{}
	timer := time.NewTimer(m.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if event.Has(fsnotify.Create) {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					if err := addWatchTree(watcher, event.Name); err != nil {
						m.logger.Warn("failed to watch new directory",
							slog.String("dir", event.Name),
							slog.String("error", err.Error()),
						)
					}
					continue
				}
			}
			if !watchable(event, re) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(m.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			m.logger.Warn("file watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)

			for _, path := range paths {
				if ctx.Err() != nil {
					return nil
				}
				fr, err := m.MigrateFile(ctx, path)
				if err != nil {
					m.logger.Error("re-migration failed",
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
				}
				if fn != nil {
					fn(fr, err)
				}
			}
		}
	}
}

// watchable reports whether event should trigger a re-migration.
func watchable(event fsnotify.Event, re *regexp.Regexp) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(event.Name)
	return !IsGenerated(name) && re.MatchString(name)
}

// addWatchTree adds root and its subdirectories to the watcher.
func addWatchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
