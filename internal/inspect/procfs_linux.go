// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package inspect

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/prometheus/procfs"
)

// tableReads bounds how often a descriptor table that keeps changing is re-read.
const tableReads = 3

var errTableChanged = errors.New("inspect: descriptor table kept changing")

// ProcFS reads /proc/<pid>/fd and /proc/<pid>/fdinfo.
type ProcFS struct {
	fs procfs.FS
}

// NewProcFS returns an inspector reading the proc filesystem mounted at
// mountPoint (procfs.DefaultMountPoint when empty).
func NewProcFS(mountPoint string) (*ProcFS, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, err
	}
	return &ProcFS{fs: fs}, nil
}

// New returns the platform default inspector.
func New() (ProcessFileInspector, error) {
	return NewProcFS("")
}

// OpenFiles implements ProcessFileInspector. Descriptors that are not
// files (sockets, pipes, anonymous inodes) and descriptors closed while the
// table is read are skipped.
func (p *ProcFS) OpenFiles(pid int) ([]Handle, error) {
	proc, err := p.fs.Proc(pid)
	if err != nil {
		return nil, classify(err)
	}
	fds, targets, err := readTable(proc)
	if err != nil {
		return nil, classify(err)
	}

	handles := make([]Handle, 0, len(fds))
	for i, fd := range fds {
		target := targets[i]
		if !filepath.IsAbs(target) {
			continue
		}
		info, err := proc.FDInfo(strconv.FormatUint(uint64(fd), 10))
		if err != nil {
			continue
		}
		if !sameInode(target, info.Ino) {
			continue
		}
		pos, err := strconv.ParseInt(info.Pos, 10, 64)
		if err != nil {
			continue
		}
		handles = append(handles, Handle{FD: int(fd), Path: target, Offset: pos})
	}
	return handles, nil
}

// readTable lists descriptor numbers and their targets. The two listings
// come from separate directory reads and are paired by index, so a table
// whose size changed in between is read again.
func readTable(proc procfs.Proc) ([]uintptr, []string, error) {
	for n := 0; n < tableReads; n++ {
		fds, err := proc.FileDescriptors()
		if err != nil {
			return nil, nil, err
		}
		targets, err := proc.FileDescriptorTargets()
		if err != nil {
			return nil, nil, err
		}
		if len(fds) == len(targets) {
			return fds, targets, nil
		}
	}
	return nil, nil, errTableChanged
}

// sameInode guards the index pairing of readTable: the fdinfo inode must
// match the target's. Kernels before 5.14 do not report it; those pairs are
// accepted.
func sameInode(target, ino string) bool {
	if ino == "" {
		return true
	}
	want, err := strconv.ParseUint(ino, 10, 64)
	if err != nil {
		return true
	}
	fi, err := os.Stat(target)
	if err != nil {
		return false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	return !ok || st.Ino == want
}
