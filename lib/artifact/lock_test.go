// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAcquireLockExcludesConcurrentHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprint.lock")

	const goroutines = 8
	var inCriticalSection int32
	var maxObserved int32
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			lock, err := acquireLock(path)
			if err != nil {
				t.Errorf("acquireLock: %v", err)
				return
			}
			n := atomic.AddInt32(&inCriticalSection, 1)
			for {
				max := atomic.LoadInt32(&maxObserved)
				if n <= max || atomic.CompareAndSwapInt32(&maxObserved, max, n) {
					break
				}
			}
			atomic.AddInt32(&inCriticalSection, -1)
			if err := lock.release(); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxObserved > 1 {
		t.Fatalf("observed %d concurrent lock holders, want at most 1", maxObserved)
	}
}

func TestAcquireLockIsReentrantAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprint.lock")

	lock, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	if err := lock.release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	lock, err = acquireLock(path)
	if err != nil {
		t.Fatalf("second acquireLock: %v", err)
	}
	if err := lock.release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}
