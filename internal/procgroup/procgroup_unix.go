// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

// Set makes cmd the leader of a new process group once started. The group
// id then equals the leader's pid.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Kill delivers sig to every process in the group led by cmd. The group is
// addressed by the leader's pid, so members that outlive an already reaped
// leader are still reached. A group without members is not an error, and
// commands started without Set are never signalled as a group.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	pgid, ok := groupOf(cmd)
	if !ok {
		return nil
	}
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func groupOf(cmd *exec.Cmd) (int, bool) {
	if cmd == nil || cmd.Process == nil {
		return 0, false
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		return 0, false
	}
	return cmd.Process.Pid, true
}
