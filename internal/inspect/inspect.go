// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package inspect lists the open files of another process.
//
// It is the only view the feeder has of the consumer: which media file is
// open and how far it has been read. Platform mechanisms differ, the
// ProcessFileInspector contract does not.
package inspect

import (
	"errors"
	"io/fs"
	"syscall"
)

var (
	// ErrAccessDenied means the caller may not inspect the process.
	ErrAccessDenied = errors.New("inspect: access denied")
	// ErrProcessGone means the process no longer exists.
	ErrProcessGone = errors.New("inspect: process gone")
	// ErrUnsupported means no inspection mechanism exists on this platform.
	ErrUnsupported = errors.New("inspect: unsupported platform")
)

// Handle is one open file descriptor of the inspected process.
type Handle struct {
	FD     int    // descriptor number
	Path   string // resolved target path
	Offset int64  // current read/write position in bytes
}

// ProcessFileInspector lists a process's open files with their offsets.
type ProcessFileInspector interface {
	OpenFiles(pid int) ([]Handle, error)
}

// Find returns the first handle whose path equals path.
func Find(handles []Handle, path string) (Handle, bool) {
	for _, h := range handles {
		if h.Path == path {
			return h, true
		}
	}
	return Handle{}, false
}

// Kind classifies an inspection error for logs and metrics.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrProcessGone):
		return "process_gone"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}

// classify maps filesystem errors to the package sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return errors.Join(ErrAccessDenied, err)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ESRCH):
		return errors.Join(ErrProcessGone, err)
	default:
		return err
	}
}
