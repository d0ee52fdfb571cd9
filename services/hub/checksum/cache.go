// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checksum persists the path → content-hash mapping that makes
// file sync incremental.
//
// A path present in the cache with a given hash means that exact content
// has been durably uploaded; absence or a hash mismatch means upload is
// required. The backing file is human-readable JSON, rewritten wholesale
// on each flush via a temp-file rename so a crash mid-write can never
// leave a partial mapping behind.
package checksum

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Cache is a persisted mapping of absolute file path to base64-encoded
// MD5 content hash.
//
// Safe for concurrent use: lookups, updates and flushes from the command
// goroutine and a client's sync job goroutine are serialized internally.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// Load parses the persisted mapping at path. The cache file is a
// required, pre-created artifact: a missing or malformed file is a
// fatal startup error.
func Load(path string) (*Cache, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checksum cache %s: %w", path, err)
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("checksum cache %s is malformed: %w", path, err)
	}
	return &Cache{path: path, entries: entries}, nil
}

// Lookup returns the recorded hash for path, if any.
func (c *Cache) Lookup(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.entries[path]
	return h, ok
}

// Update records a hash for path in memory only; Flush persists it.
func (c *Cache) Update(path, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = hash
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush atomically rewrites the backing file with the full mapping:
// write to a temp file in the same directory, fsync, rename.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.MarshalIndent(c.entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encode checksum cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".cache-*.json")
	if err != nil {
		return fmt.Errorf("flush checksum cache: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush checksum cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush checksum cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("flush checksum cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("flush checksum cache: %w", err)
	}
	return nil
}

// FileMD5 returns the base64-encoded MD5 checksum of a local file,
// streamed in 4 KiB chunks.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("checksum %s: %w", path, err)
		}
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
