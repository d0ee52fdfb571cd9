// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sync mirrors newly produced data files to cloud object storage
// while a session is active.
//
// The engine walks a watched directory, filters by extension and
// modification time, diffs content checksums against the persisted cache
// and uploads only what changed. A pass runs on a fixed interval, with
// filesystem events (fsnotify) triggering an early pass after a short
// debounce. Per-file upload failures are logged and skipped; they never
// abort the rest of the batch, and the cache is flushed after every
// successful upload so a crash cannot force re-uploading work already
// done.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/AleutianAI/sessionhub/pkg/logging"
	"github.com/AleutianAI/sessionhub/services/hub/checksum"
)

// Uploader is the object-store surface the engine requires.
// *gcs.Client satisfies it; tests substitute fakes.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, objectPath string, metadata map[string]string) error
}

// Candidate is one file due for upload: an absolute path and its
// current content hash. Produced by Scan, consumed by SyncOnce, never
// persisted.
type Candidate struct {
	Path string
	Hash string
}

// Stats summarizes one sync pass.
type Stats struct {
	Scanned  int
	Uploaded int
	Failed   int
}

// UploadError wraps a single file's upload failure.
type UploadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// Engine is the per-client incremental file-sync engine.
//
// The mtime floor, remote prefix, interval and instrument name are
// mutable after construction: the engine is built when the client first
// connects, before the session (whose start time becomes the floor) is
// confirmed. All mutation and all sync passes are serialized by an
// internal mutex, so a final synchronous pass cannot race a still-firing
// scheduled pass.
type Engine struct {
	mu stdsync.Mutex

	watchRoot    string
	exts         map[string]struct{}
	mtimeFloor   time.Time
	remotePrefix string
	interval     time.Duration
	instrName    string

	uploader Uploader
	cache    *checksum.Cache
	logger   *logging.Logger
}

// Config configures a new Engine.
type Config struct {
	// WatchRoot is the directory mirrored to object storage.
	WatchRoot string

	// Extensions restricts syncing to files with these extensions
	// (with leading dot, e.g. ".tif"). Empty means all files.
	Extensions []string

	// Interval is the period of the recurring sync job.
	// Default: 10 minutes.
	Interval time.Duration

	// InstrumentName is attached to uploads as the instr_name metadata.
	InstrumentName string
}

// NewEngine creates an engine over the given uploader and cache.
func NewEngine(cfg Config, uploader Uploader, cache *checksum.Cache, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	var exts map[string]struct{}
	if len(cfg.Extensions) > 0 {
		exts = make(map[string]struct{}, len(cfg.Extensions))
		for _, e := range cfg.Extensions {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts[strings.ToLower(e)] = struct{}{}
		}
	}
	e := &Engine{
		watchRoot:    cfg.WatchRoot,
		exts:         exts,
		interval:     cfg.Interval,
		instrName:    cfg.InstrumentName,
		uploader:     uploader,
		cache:        cache,
		logger:       logger,
	}
	logger.Info("sync engine initialized", "watch_root", cfg.WatchRoot, "interval", cfg.Interval)
	return e
}

// SetMTimeFloor sets the modification-time floor; files modified before
// it are never sync candidates. Set to the session start time so
// pre-session files are not uploaded.
func (e *Engine) SetMTimeFloor(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mtimeFloor = t
	e.logger.Debug("only watching files modified after", "mtime_floor", t)
}

// SetRemotePrefix sets the object-path prefix uploads are placed under.
func (e *Engine) SetRemotePrefix(prefix string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remotePrefix = strings.Trim(prefix, "/")
	e.logger.Debug("set remote prefix", "prefix", e.remotePrefix)
}

// SetInterval sets the recurring job period. Takes effect on the next
// Run; a running loop is not re-timed.
func (e *Engine) SetInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.interval = d
	}
}

// SetInstrumentName sets the instrument identifier attached as upload
// metadata.
func (e *Engine) SetInstrumentName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instrName = name
}

// Interval returns the recurring job period.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// Scan recursively enumerates files under the watch root and returns
// the candidates due for upload: allowed extension, modified at or
// after the mtime floor, and content hash absent from or different in
// the checksum cache.
func (e *Engine) Scan(ctx context.Context) ([]Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanLocked(ctx)
}

func (e *Engine) scanLocked(ctx context.Context) ([]Candidate, error) {
	var res []Candidate
	err := filepath.WalkDir(e.watchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if e.exts != nil {
			if _, ok := e.exts[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
		}
		if !e.mtimeFloor.IsZero() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.ModTime().Before(e.mtimeFloor) {
				return nil
			}
		}
		hash, err := checksum.FileMD5(path)
		if err != nil {
			// File vanished or is unreadable mid-scan; skip it, the
			// next pass will see it again.
			e.logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		if cached, ok := e.cache.Lookup(path); ok && cached == hash {
			return nil
		}
		res = append(res, Candidate{Path: path, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", e.watchRoot, err)
	}
	e.logger.Info("files found to upload", "count", len(res))
	return res, nil
}

// SyncOnce runs one full sync pass: scan, upload each candidate to
// remotePrefix/relative_path with mtime and instrument metadata, record
// the hash and flush the cache after each successful upload.
//
// A failed upload is logged, counted and skipped; the remaining
// candidates are still processed. The first failure is surfaced in the
// returned error after the whole batch has run.
func (e *Engine) SyncOnce(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats Stats
	candidates, err := e.scanLocked(ctx)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(candidates)

	var errs []error
	for _, cand := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		relPath, err := filepath.Rel(e.watchRoot, cand.Path)
		if err != nil {
			errs = append(errs, &UploadError{Path: cand.Path, Err: err})
			stats.Failed++
			continue
		}
		objectPath := filepath.ToSlash(relPath)
		if e.remotePrefix != "" {
			objectPath = e.remotePrefix + "/" + objectPath
		}

		metadata := map[string]string{"instr_name": e.instrName}
		if info, err := os.Stat(cand.Path); err == nil {
			metadata["mtime"] = info.ModTime().UTC().Format(time.RFC3339)
		}

		if err := e.uploader.UploadFile(ctx, cand.Path, objectPath, metadata); err != nil {
			uploadErr := &UploadError{Path: cand.Path, Err: err}
			e.logger.Error("upload failed", "path", cand.Path, "error", err)
			errs = append(errs, uploadErr)
			stats.Failed++
			continue
		}

		e.cache.Update(cand.Path, cand.Hash)
		if err := e.cache.Flush(); err != nil {
			// The upload is durable; only the local record is behind.
			// The file will re-hash equal next pass and be skipped.
			e.logger.Error("cache flush failed", "error", err)
			errs = append(errs, err)
		}
		stats.Uploaded++
	}

	if stats.Uploaded > 0 {
		e.logger.Info("files uploaded", "count", stats.Uploaded)
	}
	return stats, errors.Join(errs...)
}
