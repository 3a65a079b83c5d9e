// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor owns the lifecycle of the single consumer process and
// the stop token every other component observes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/ffplaylist/internal/log"
	"github.com/ManuGH/ffplaylist/internal/procgroup"
	"github.com/ManuGH/ffplaylist/internal/workspace"
)

const (
	DefaultGracePeriod = time.Second
	DefaultKillTimeout = 2 * time.Second

	// ringLines bounds the captured consumer stderr.
	ringLines = 64
	// tailLines is how much of the ring is logged after an abnormal exit.
	tailLines = 10
)

var (
	ErrAlreadyStarted = errors.New("supervisor: consumer already started")
	ErrStopped        = errors.New("supervisor: stopped")
)

// State is the lifecycle position of the consumer.
type State int

const (
	Unstarted State = iota
	Running
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures the consumer command.
type Options struct {
	BinPath     string
	OutputArgs  []string
	Verbose     int
	GracePeriod time.Duration
	KillTimeout time.Duration
}

// Supervisor spawns the consumer at most once and terminates it exactly once.
type Supervisor struct {
	opts   Options
	ws     *workspace.Workspace
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	ring    *LineRing
	waitCh  chan error
	exited  chan struct{}
	exitErr error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New returns a supervisor whose stop token derives from parent.
// The supervisor takes ownership of ws and removes it on Shutdown.
func New(parent context.Context, ws *workspace.Workspace, opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		opts:   opts,
		ws:     ws,
		logger: log.WithComponent("supervisor"),
		ctx:    ctx,
		cancel: cancel,
		ring:   NewLineRing(ringLines),
		exited: make(chan struct{}),
	}
}

// Context is the stop token. It is cancelled by Shutdown or by the parent.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the consumer pid while it is alive.
func (s *Supervisor) PID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0, false
	}
	select {
	case <-s.exited:
		return 0, false
	default:
	}
	return s.cmd.Process.Pid, true
}

// Exited is closed once the consumer has been reaped. It never closes if
// nothing was spawned.
func (s *Supervisor) Exited() <-chan struct{} {
	return s.exited
}

// ExitErr returns the result of waiting on the consumer; valid after Exited.
func (s *Supervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Tail returns the last n captured stderr lines of the consumer. Nothing is
// captured at verbosity 2 and above, where output goes to the terminal.
func (s *Supervisor) Tail(n int) []string {
	return s.ring.LastN(n)
}

// Spawn starts the consumer on the first playlist of the chain.
func (s *Supervisor) Spawn(playlistPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil || s.state == Stopping || s.state == Terminated {
		return ErrStopped
	}
	if s.state != Unstarted {
		return ErrAlreadyStarted
	}

	args := BuildArgs(playlistPath, s.opts.OutputArgs)
	cmd := exec.Command(s.opts.BinPath, args...) // #nosec G204 -- binary and args come from the operator
	cmd.Dir = s.ws.Dir()
	cmd.Stdin = nil
	if s.opts.Verbose >= 2 {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		// ffmpeg logs to stderr only; stdout may carry media for "-" outputs.
		cmd.Stdout = nil
		cmd.Stderr = s.ring
	}
	// Children holding the output pipe must not block Wait forever.
	cmd.WaitDelay = s.opts.KillTimeout
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.opts.BinPath, err)
	}

	s.cmd = cmd
	s.waitCh = make(chan error, 1)
	s.state = Running

	s.logger.Info().
		Int(log.FieldPID, cmd.Process.Pid).
		Str(log.FieldCommand, s.opts.BinPath+" "+strings.Join(args, " ")).
		Str(log.FieldOldState, Unstarted.String()).
		Str(log.FieldNewState, Running.String()).
		Msg("consumer started")

	go s.wait(cmd)
	return nil
}

func (s *Supervisor) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	s.exitErr = err
	state := s.state
	s.mu.Unlock()

	if state == Running {
		ev := s.logger.Error()
		if err == nil {
			ev = s.logger.Warn()
		}
		ev.Err(err).
			Int(log.FieldPID, cmd.Process.Pid).
			Strs("tail", s.Tail(tailLines)).
			Msg("consumer exited on its own")
	}

	s.waitCh <- err
	close(s.exited)
}

// Shutdown cancels the stop token, stops the consumer (SIGINT, then SIGKILL
// after the grace period) and removes the workspace. Only the first call does
// work; later calls return the first result.
func (s *Supervisor) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Supervisor) shutdown() error {
	s.cancel()

	s.mu.Lock()
	prev := s.state
	cmd := s.cmd
	if prev == Running {
		s.state = Stopping
	}
	s.mu.Unlock()

	var err error
	if prev == Running {
		s.logger.Debug().
			Str(log.FieldOldState, Running.String()).
			Str(log.FieldNewState, Stopping.String()).
			Msg("stopping consumer")

		select {
		case <-s.exited:
		default:
			termErr := procgroup.Terminate(cmd, s.waitCh, syscall.SIGINT, s.opts.GracePeriod, s.opts.KillTimeout)
			if errors.Is(termErr, procgroup.ErrKillFailed) {
				err = fmt.Errorf("stop consumer: %w", termErr)
			}
		}
	}

	s.mu.Lock()
	s.state = Terminated
	s.mu.Unlock()

	if cerr := s.ws.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Str(log.FieldWorkspace, s.ws.Dir()).Msg("workspace cleanup failed")
	}

	s.logger.Debug().
		Str(log.FieldOldState, prev.String()).
		Str(log.FieldNewState, Terminated.String()).
		Msg("supervisor terminated")
	return err
}
