// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"loud", LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestNew_FileLogging(t *testing.T) {
	t.Run("writes JSON entries to the dated service file", func(t *testing.T) {
		dir := t.TempDir()
		logger := New(Config{
			Level:   LevelDebug,
			LogDir:  dir,
			Service: "hub",
			Quiet:   true,
		})
		logger.Info("session started", "session_id", "S1")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		name := "hub_" + time.Now().Format("2006-01-02") + ".log"
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		var entry map[string]any
		if err := json.Unmarshal(content[:len(content)-1], &entry); err != nil {
			t.Fatalf("log entry is not JSON: %v (content %q)", err, content)
		}
		if entry["msg"] != "session started" {
			t.Errorf("msg = %v, want session started", entry["msg"])
		}
		if entry["session_id"] != "S1" {
			t.Errorf("session_id = %v, want S1", entry["session_id"])
		}
		if entry["service"] != "hub" {
			t.Errorf("service = %v, want hub", entry["service"])
		}
	})

	t.Run("level filters lower severities", func(t *testing.T) {
		dir := t.TempDir()
		logger := New(Config{
			Level:   LevelWarn,
			LogDir:  dir,
			Service: "hub",
			Quiet:   true,
		})
		logger.Info("dropped")
		logger.Warn("kept")
		logger.Close()

		name := "hub_" + time.Now().Format("2006-01-02") + ".log"
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if strings.Contains(string(content), "dropped") {
			t.Error("info entry not filtered at warn level")
		}
		if !strings.Contains(string(content), "kept") {
			t.Error("warn entry missing")
		}
	})

	t.Run("unwritable log dir degrades instead of failing", func(t *testing.T) {
		logger := New(Config{
			LogDir:  string([]byte{0}), // never creatable
			Service: "hub",
			Quiet:   true,
		})
		logger.Info("still works")
		if err := logger.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	t.Run("close twice is safe", func(t *testing.T) {
		logger := New(Config{LogDir: t.TempDir(), Service: "hub", Quiet: true})
		if err := logger.Close(); err != nil {
			t.Fatalf("first Close: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
	})
}

func TestWith(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "hub", Quiet: true})
	derived := logger.With("client_id", "M1")
	derived.Info("dispatch")
	logger.Close()

	name := "hub_" + time.Now().Format("2006-01-02") + ".log"
	content, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(content), `"client_id":"M1"`) {
		t.Errorf("derived attribute missing from %q", content)
	}
}
