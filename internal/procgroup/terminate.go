// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/ffplaylist/internal/log"
	"github.com/ManuGH/ffplaylist/internal/metrics"
)

// Terminate stops a process group in two stages.
// It sends sig (SIGINT for ffmpeg, which flushes its output on interrupt),
// waits for the process to exit via waitCh, and sends SIGKILL if it does not
// exit within grace. After SIGKILL it waits at most killTimeout more.
// It consumes and returns the error from waitCh.
// It is safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, sig syscall.Signal, grace, killTimeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signalGroup(cmd, sig)

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
	}

	log.L().Warn().
		Int(log.FieldPID, cmd.Process.Pid).
		Str(log.FieldSignal, signalName(sig)).
		Dur("grace", grace).
		Msg("grace period exceeded, sending SIGKILL to process group")
	signalGroup(cmd, syscall.SIGKILL)

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	case <-time.After(killTimeout):
		metrics.IncProcWait("kill_timeout")
		return ErrKillFailed
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	name := signalName(sig)
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
		log.L().Debug().Err(err).Str(log.FieldSignal, name).Msg("signal delivery failed")
	}
}
