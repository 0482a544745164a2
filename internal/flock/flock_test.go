// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package flock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "test.lock"))
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := unlockFile(f); err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
}

func TestLockBlocking_Success(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "blocking.lock"))
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	defer f.Close()

	if err := lockBlocking(context.Background(), f); err != nil {
		t.Fatalf("Failed to acquire blocking lock: %v", err)
	}
	if err := unlockFile(f); err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
}

func TestAcquire_CreatesParentDir(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "nested", "dir", "plugin.lock")

	g, err := Acquire(context.Background(), lockPath)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	if g.Path() != lockPath {
		t.Errorf("wrong path %q; want %q", g.Path(), lockPath)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file was not created: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Failed to release: %v", err)
	}
	// A second release is a no-op.
	if err := g.Release(); err != nil {
		t.Fatalf("Second release failed: %v", err)
	}
}

func TestAcquire_ExcludesGoroutines(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "concurrent.lock")

	const numGoroutines = 8
	var holders, maxHolders atomic.Int32
	var wg sync.WaitGroup

	for range numGoroutines {
		wg.Go(func() {
			g, err := Acquire(context.Background(), lockPath)
			if err != nil {
				t.Errorf("Failed to acquire: %v", err)
				return
			}
			n := holders.Add(1)
			for {
				m := maxHolders.Load()
				if n <= m || maxHolders.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			holders.Add(-1)
			if err := g.Release(); err != nil {
				t.Errorf("Failed to release: %v", err)
			}
		})
	}
	wg.Wait()

	if got := maxHolders.Load(); got != 1 {
		t.Fatalf("lock was held by %d goroutines at once", got)
	}
}

func TestAcquire_Cancellation(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "cancel.lock")

	held, err := Acquire(context.Background(), lockPath)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = Acquire(ctx, lockPath)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancellation took too long: %v", elapsed)
	}
}
