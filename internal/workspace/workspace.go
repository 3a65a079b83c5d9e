// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package workspace manages the private directory that holds the generated
// playlist chain and media symlinks of one run.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultPrefix names the per-run directory.
const DefaultPrefix = "ffpl-"

var ErrClosed = errors.New("workspace closed")

// Workspace is a scoped temp directory: created once by New and removed by Close.
type Workspace struct {
	dir string

	mu     sync.Mutex
	closed bool
}

// New creates a fresh private directory below root (os.TempDir when empty).
func New(root, prefix string) (*Workspace, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	dir, err := os.MkdirTemp(root, prefix)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	return &Workspace{dir: abs}, nil
}

// Dir returns the absolute workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Join returns name inside the workspace.
func (w *Workspace) Join(name string) string {
	return filepath.Join(w.dir, name)
}

// Rel returns path relative to the workspace. Paths outside are rejected
// because the consumer resolves every reference against the workspace.
func (w *Workspace) Rel(path string) (string, error) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace %q", path, w.dir)
	}
	return filepath.ToSlash(rel), nil
}

// CreateEmpty creates a new empty, uniquely named file with the given suffix
// and returns its absolute path.
func (w *Workspace) CreateEmpty(suffix string) (string, error) {
	if w.Closed() {
		return "", ErrClosed
	}
	path := w.Join(uuid.NewString() + suffix)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Closed reports whether Close has been called.
func (w *Workspace) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close removes the directory and everything in it. It is idempotent and
// best effort: only the first call touches the filesystem.
func (w *Workspace) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return os.RemoveAll(w.dir)
}
