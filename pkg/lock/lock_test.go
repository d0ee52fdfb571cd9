// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	t.Run("acquire records the pid and release removes the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hub.lock")
		g, err := Acquire(path)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		pid, err := strconv.Atoi(string(content))
		if err != nil || pid != os.Getpid() {
			t.Errorf("lock content = %q, want our pid %d", content, os.Getpid())
		}

		if err := g.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("lock file still exists after release")
		}
	})

	t.Run("reacquire after release succeeds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hub.lock")
		g, err := Acquire(path)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if err := g.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		g2, err := Acquire(path)
		if err != nil {
			t.Fatalf("second Acquire: %v", err)
		}
		g2.Release()
	})

	t.Run("stale lock from a dead process is broken", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hub.lock")
		// A pid far beyond any plausible live process.
		if err := os.WriteFile(path, []byte("999999999"), 0640); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		g, err := Acquire(path)
		if err != nil {
			t.Fatalf("Acquire over stale lock: %v", err)
		}
		g.Release()
	})

	t.Run("release twice is safe", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hub.lock")
		g, err := Acquire(path)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if err := g.Release(); err != nil {
			t.Fatalf("first Release: %v", err)
		}
		if err := g.Release(); err != nil {
			t.Errorf("second Release: %v", err)
		}
	})
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("IsProcessAlive(self) = false, want true")
	}
	if IsProcessAlive(999999999) {
		t.Error("IsProcessAlive(bogus) = true, want false")
	}
}
