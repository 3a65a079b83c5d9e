// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup signals a spawned command together with its children.
package procgroup

import (
	"errors"
	"syscall"
)

var (
	ErrKillFailed = errors.New("kill operation failed")
)

// signalName maps the signals used by Terminate to stable metric labels.
func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	default:
		return sig.String()
	}
}
