// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package flock

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// fcntl POSIX locks behave the most consistently across platforms and
// have a chance of working over NFS and CIFS. They are held per process,
// not per descriptor, which is why Acquire adds an in-process guard.
func lockFile(f *os.File) error {
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(io.SeekStart),
	})
}

func unlockFile(f *os.File) error {
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(io.SeekStart),
	})
}

func isContended(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) || errors.Is(err, unix.EINTR)
}
