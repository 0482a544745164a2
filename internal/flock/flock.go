// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package flock provides exclusive locks on files, used to keep
// concurrent proto processes from writing the same plugin cache entry or
// install directory at the same time.
package flock

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const retryInterval = 100 * time.Millisecond

// lockBlocking takes an exclusive lock on the given file, waiting while it
// is contended. If the given context is cancelled then it returns early
// with the cancellation error.
func lockBlocking(ctx context.Context, f *os.File) error {
	for {
		err := lockFile(f)
		if err == nil {
			return nil
		}
		if !isContended(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Guard is a held lock returned by Acquire.
type Guard struct {
	path string
	f    *os.File
	sem  chan struct{}
	once sync.Once
}

// Path returns the path of the lock file.
func (g *Guard) Path() string {
	return g.path
}

// Release unlocks and closes the lock file. It is safe to call more than
// once.
func (g *Guard) Release() error {
	var err error
	g.once.Do(func() {
		log.Printf("[TRACE] Releasing lock %s", g.path)
		unlockErr := unlockFile(g.f)
		closeErr := g.f.Close()
		<-g.sem
		if unlockErr != nil {
			err = fmt.Errorf("failed to unlock %s: %w", g.path, unlockErr)
		} else if closeErr != nil {
			err = fmt.Errorf("failed to close lock file %s: %w", g.path, closeErr)
		}
	})
	return err
}

// Process-local half of the lock, keyed by lock path.
var (
	localLocksMu sync.Mutex
	localLocks   = map[string]chan struct{}{}
)

func localLock(path string) chan struct{} {
	localLocksMu.Lock()
	defer localLocksMu.Unlock()
	sem, ok := localLocks[path]
	if !ok {
		sem = make(chan struct{}, 1)
		localLocks[path] = sem
	}
	return sem
}

// Acquire takes an exclusive lock on the file at the given path, creating
// it and its parent directory if needed, and waits until the lock is
// available or the context is cancelled.
//
// The lock excludes other processes and other goroutines in this process.
// The caller must call Release on the result.
func Acquire(ctx context.Context, path string) (*Guard, error) {
	path = filepath.Clean(path)
	log.Printf("[TRACE] Attempting to acquire lock %s", path)

	sem := localLock(path)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	//nolint: mnd // directory permissions
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		<-sem
		return nil, err
	}

	var f *os.File
	// Creating the file can race with another process doing the same, so
	// transient errors are retried for a short while.
	for timeout := time.After(time.Second); ; {
		var err error
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err == nil {
			break
		}
		select {
		case <-timeout:
			<-sem
			return nil, err
		case <-ctx.Done():
			<-sem
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := lockBlocking(ctx, f); err != nil {
		f.Close()
		<-sem
		return nil, fmt.Errorf("unable to acquire file lock on %q: %w", path, err)
	}

	log.Printf("[TRACE] Acquired lock %s", path)
	return &Guard{path: path, f: f, sem: sem}, nil
}
