// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build linux

package inspect

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcFS_ReportsOwnOpenFileAndOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o600))
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = io.ReadFull(f, make([]byte, 300))
	require.NoError(t, err)

	insp, err := NewProcFS("")
	require.NoError(t, err)

	handles, err := insp.OpenFiles(os.Getpid())
	require.NoError(t, err)

	h, ok := Find(handles, resolved)
	require.True(t, ok, "own open file must be listed")
	assert.Equal(t, int(f.Fd()), h.FD)
	assert.Equal(t, int64(300), h.Offset)
}

func TestProcFS_ProcessGone(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	insp, err := New()
	require.NoError(t, err)

	_, err = insp.OpenFiles(cmd.Process.Pid)
	assert.ErrorIs(t, err, ErrProcessGone)
	assert.Equal(t, "process_gone", Kind(err))
}

func TestSameInode(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(a, nil, 0o600))
	require.NoError(t, os.WriteFile(b, nil, 0o600))

	fi, err := os.Stat(a)
	require.NoError(t, err)
	ino := strconv.FormatUint(fi.Sys().(*syscall.Stat_t).Ino, 10)

	assert.True(t, sameInode(a, ino))
	assert.False(t, sameInode(b, ino), "a target paired with another descriptor's fdinfo is dropped")
	assert.False(t, sameInode(filepath.Join(dir, "gone.bin"), ino))
	assert.True(t, sameInode(b, ""), "kernels without ino in fdinfo keep the pair")
}
