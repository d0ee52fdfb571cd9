// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCache_LoadFlushRoundTrip(t *testing.T) {
	t.Run("entries survive flush and reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.json")
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		cache, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		cache.Update("/data/a.tif", "hash-a")
		cache.Update("/data/b.tif", "hash-b")
		if err := cache.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}

		reloaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load after flush: %v", err)
		}
		if reloaded.Len() != 2 {
			t.Fatalf("Len = %d, want 2", reloaded.Len())
		}
		got, ok := reloaded.Lookup("/data/a.tif")
		if !ok || got != "hash-a" {
			t.Errorf("Lookup(a.tif) = %q, %v; want hash-a, true", got, ok)
		}
	})

	t.Run("update overwrites previous hash", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.json")
		if err := os.WriteFile(path, []byte(`{"/data/a.tif": "old"}`), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		cache, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		cache.Update("/data/a.tif", "new")
		got, _ := cache.Lookup("/data/a.tif")
		if got != "new" {
			t.Errorf("Lookup = %q, want new", got)
		}
	})

	t.Run("missing cache file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		if err == nil {
			t.Error("Load = nil, want error for missing file")
		}
	})

	t.Run("corrupt cache file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.json")
		if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load = nil, want error for corrupt file")
		}
	})
}

func TestFileMD5(t *testing.T) {
	t.Run("known digest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "f.bin")
		if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		hash, err := FileMD5(path)
		if err != nil {
			t.Fatalf("FileMD5: %v", err)
		}
		// base64(md5("hello world"))
		want := "XrY7u+Ae7tCTyyK7j1rNww=="
		if hash != want {
			t.Errorf("FileMD5 = %q, want %q", hash, want)
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := FileMD5("/nonexistent/file"); err == nil {
			t.Error("FileMD5 = nil, want error")
		}
	})
}
