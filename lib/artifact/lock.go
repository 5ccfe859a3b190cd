// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory, per-fingerprint exclusive lock backed by
// flock(2) on a dedicated lock file. It serializes concurrent
// [Cache.EnsureLocal] calls for the same artifact without contending
// with any other fingerprint. Modeled on the flock-based locker idiom
// used throughout the container-storage ecosystem (e.g. the
// lockfile_unix.go pattern of opening-or-creating a file and flocking
// its descriptor) rather than the fcntl byte-range locks that pattern
// also supports — a whole-file exclusive lock is all EnsureLocal needs.
type fileLock struct {
	file *os.File
}

// acquireLock opens (creating if necessary) the lock file at path and
// blocks until it holds an exclusive flock on it. The lock file itself
// is never removed: removing it while another process holds the lock
// would let a third process acquire a lock on a now-unlinked inode while
// the original holder still thinks it owns the lock on the live path.
func acquireLock(path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &IOError{Path: path, Err: fmt.Errorf("opening lock file: %w", err)}
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		file.Close()
		return nil, &IOError{Path: path, Err: fmt.Errorf("acquiring lock: %w", err)}
	}
	return &fileLock{file: file}, nil
}

// release drops the lock and closes the underlying file descriptor.
func (l *fileLock) release() error {
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}
