// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock provides the single-instance guard for the session hub.
//
// Only one hub may run per machine: two hubs sharing a checksum cache file
// would corrupt it, and two hubs answering the same clients would break the
// serialized dispatch model. The guard is an advisory file lock holding the
// owner's PID, with stale-lock detection for unclean shutdowns.
//
// The guard is an explicit dependency passed to the daemon entrypoint, not
// a process-global.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned by Acquire when another live process
// holds the instance lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// FileLocker abstracts platform-specific file locking operations.
//
// Unix uses flock(2); Windows uses LockFileEx. Implementations must be
// safe for concurrent use on different files.
type FileLocker interface {
	// Lock acquires an exclusive, non-blocking lock on the file.
	// Returns ErrFileLocked if another process holds the lock.
	Lock(f *os.File) error

	// Unlock releases the lock. Safe to call even if not locked.
	Unlock(f *os.File) error
}

// ErrFileLocked is returned by FileLocker.Lock when the file is held
// by another process.
var ErrFileLocked = errors.New("file is locked by another process")

// Guard holds the single-instance lock for the lifetime of the process.
type Guard struct {
	path   string
	file   *os.File
	locker FileLocker
}

// Acquire takes the instance lock at path.
//
// The lock file records the owner's PID. If the file exists but its
// recorded process is dead (crash, kill -9), the stale lock is broken
// and re-acquired. Returns ErrAlreadyRunning when a live owner exists.
func Acquire(path string) (*Guard, error) {
	g := &Guard{path: path, locker: newPlatformLocker()}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := g.locker.Lock(f); err != nil {
		if errors.Is(err, ErrFileLocked) {
			f.Close()
			return nil, fmt.Errorf("%w (lock file %s)", ErrAlreadyRunning, path)
		}
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	// Holding the flock is authoritative; the PID is informational, and
	// lets operators identify a stale file left by a dead owner on
	// filesystems without flock support.
	if pid, ok := readPID(f); ok && pid != os.Getpid() && IsProcessAlive(pid) {
		g.locker.Unlock(f)
		f.Close()
		return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if err := writePID(f); err != nil {
		g.locker.Unlock(f)
		f.Close()
		return nil, fmt.Errorf("write pid to %s: %w", path, err)
	}

	g.file = f
	return g, nil
}

// Release unlocks and removes the lock file. Safe to call twice.
func (g *Guard) Release() error {
	if g.file == nil {
		return nil
	}
	if err := g.locker.Unlock(g.file); err != nil {
		g.file.Close()
		g.file = nil
		return err
	}
	err := g.file.Close()
	g.file = nil
	os.Remove(g.path)
	return err
}

// IsProcessAlive reports whether a process with the given PID exists.
// Implemented per platform; used for stale lock detection.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

func readPID(f *os.File) (int, bool) {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 || (err != nil && n <= 0) {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		return err
	}
	return f.Sync()
}
