// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package instrument simulates an acquisition instrument producing data
// files. The simulated instrument draws a random file from a pool held
// in object storage and drops it into the client's watch directory with
// a timestamp-derived name, which is enough to exercise the sync path
// end to end without real hardware.
package instrument

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/AleutianAI/sessionhub/pkg/logging"
)

// DataSource produces one new data file in outputDir and returns its
// path.
type DataSource interface {
	GenerateData(ctx context.Context, outputDir string) (string, error)
}

// ObjectStore is the storage surface the simulated instrument needs.
// *gcs.Client satisfies it.
type ObjectStore interface {
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
	DownloadTo(ctx context.Context, objectPath, localPath string) error
}

// GCSInstrument is a simulated instrument backed by a pool of sample
// files under a bucket prefix.
type GCSInstrument struct {
	store      ObjectStore
	poolPrefix string
	logger     *logging.Logger

	// now and pick are swappable for deterministic tests.
	now  func() time.Time
	pick func(n int) int
}

// NewGCSInstrument creates a simulated instrument drawing from the pool
// under poolPrefix.
func NewGCSInstrument(store ObjectStore, poolPrefix string, logger *logging.Logger) *GCSInstrument {
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("instrument initialized", "pool_prefix", poolPrefix)
	return &GCSInstrument{
		store:      store,
		poolPrefix: poolPrefix,
		logger:     logger,
		now:        time.Now,
		pick:       rand.Intn,
	}
}

// GenerateData downloads a random pool file into outputDir, named by
// the current timestamp (yymmdd_HHMMSS) with the pool file's extension
// preserved, and returns the new file's path.
func (g *GCSInstrument) GenerateData(ctx context.Context, outputDir string) (string, error) {
	pool, err := g.store.ListPrefix(ctx, g.poolPrefix)
	if err != nil {
		return "", fmt.Errorf("list data pool: %w", err)
	}
	if len(pool) == 0 {
		return "", fmt.Errorf("data pool %q is empty", g.poolPrefix)
	}

	objectPath := pool[g.pick(len(pool))]
	g.logger.Debug("selected pool file", "object", objectPath)

	name := g.now().Format("060102_150405") + filepath.Ext(objectPath)
	outPath := filepath.Join(outputDir, name)
	if err := g.store.DownloadTo(ctx, objectPath, outPath); err != nil {
		return "", fmt.Errorf("download %s: %w", objectPath, err)
	}

	g.logger.Info("data file generated", "path", outPath)
	return outPath, nil
}
