// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the runner waits after the last filesystem
// event before triggering an early pass, so a burst of writes from one
// acquisition produces one pass instead of many.
const watchDebounce = 2 * time.Second

// PassFunc receives the outcome of every sync pass the runner performs.
// Used to feed metrics; may be nil.
type PassFunc func(stats Stats, err error)

// Run drives the recurring sync job until ctx is canceled: one pass
// every interval, plus an early pass two seconds after filesystem
// activity settles. Filesystem watching is best-effort; if the watcher
// cannot be created the loop still runs on the timer alone.
//
// Run blocks. Callers wanting a completion signal should wrap it:
//
//	go func() { engine.Run(ctx, onPass); close(done) }()
func (e *Engine) Run(ctx context.Context, onPass PassFunc) {
	kick := make(chan struct{}, 1)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.logger.Warn("filesystem watcher unavailable, timer only", "error", err)
	} else {
		defer watcher.Close()
		if err := e.addRecursive(watcher, e.watchRoot); err != nil {
			e.logger.Warn("could not watch directory tree", "error", err)
		}
		go e.forwardEvents(ctx, watcher, kick)
	}

	ticker := time.NewTicker(e.Interval())
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	pass := func() {
		stats, err := e.SyncOnce(ctx)
		if err != nil && ctx.Err() == nil {
			e.logger.Error("sync pass finished with errors", "uploaded", stats.Uploaded, "failed", stats.Failed, "error", err)
		}
		if onPass != nil {
			onPass(stats, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-ticker.C:
			pass()
		case <-kick:
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
				debounceC = debounce.C
			} else {
				debounce.Reset(watchDebounce)
			}
		case <-debounceC:
			pass()
		}
	}
}

// addRecursive watches root and every subdirectory beneath it.
func (e *Engine) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Ignore errors, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

// forwardEvents converts create/write events into kick signals and adds
// newly created directories to the watch list.
func (e *Engine) forwardEvents(ctx context.Context, watcher *fsnotify.Watcher, kick chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					watcher.Add(event.Name)
					continue
				}
			}
			select {
			case kick <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}
