// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package feed drives one run: filenames in, a single consumer playing them
// back to back.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/ffplaylist/internal/inspect"
	"github.com/ManuGH/ffplaylist/internal/log"
	"github.com/ManuGH/ffplaylist/internal/monitor"
	"github.com/ManuGH/ffplaylist/internal/playlist"
	"github.com/ManuGH/ffplaylist/internal/queue"
	"github.com/ManuGH/ffplaylist/internal/supervisor"
	"github.com/ManuGH/ffplaylist/internal/workspace"
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1 << 20

var (
	// ErrStopped is returned by Submit after shutdown was requested.
	ErrStopped = errors.New("feed: stopped")
	// ErrConsumerExited reports that the consumer ended while input was still expected.
	ErrConsumerExited = errors.New("feed: consumer exited")
)

// Options configures a Manager.
type Options struct {
	Supervisor   supervisor.Options
	TempDir      string
	PollInterval time.Duration
	// Capacity of the entry queue; queue.DefaultCapacity when zero.
	Capacity int
	// Reporter receives monitor progress; may be nil.
	Reporter monitor.Reporter
	// Inspector defaults to the platform inspector.
	Inspector inspect.ProcessFileInspector
}

// Manager owns the workspace, the consumer and the monitor of one run.
type Manager struct {
	ws      *workspace.Workspace
	sup     *supervisor.Supervisor
	queue   *queue.Queue
	writer  *playlist.Writer
	monitor *monitor.Monitor
	logger  zerolog.Logger

	failOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// New creates the workspace and wires the components. Nothing is spawned
// until the first Submit.
func New(ctx context.Context, opts Options) (*Manager, error) {
	insp := opts.Inspector
	if insp == nil {
		var err error
		if insp, err = inspect.New(); err != nil {
			return nil, fmt.Errorf("process inspector: %w", err)
		}
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = queue.DefaultCapacity
	}

	ws, err := workspace.New(opts.TempDir, workspace.DefaultPrefix)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(ctx, ws, opts.Supervisor)
	q := queue.New(capacity)
	m := &Manager{
		ws:      ws,
		sup:     sup,
		queue:   q,
		writer:  playlist.NewWriter(ws, q, sup),
		monitor: monitor.New(q, insp, sup, opts.Reporter, opts.PollInterval),
		logger:  log.WithComponentFromContext(ctx, "feed"),
	}
	m.logger.Debug().
		Str(log.FieldWorkspace, ws.Dir()).
		Int("queue_capacity", q.Capacity()).
		Msg("workspace created")
	return m, nil
}

// Workspace returns the run's private directory.
func (m *Manager) Workspace() *workspace.Workspace { return m.ws }

// Queue returns the entry queue shared by writer and monitor.
func (m *Manager) Queue() *queue.Queue { return m.queue }

// Supervisor returns the consumer supervisor.
func (m *Manager) Supervisor() *supervisor.Supervisor { return m.sup }

// Submit appends filename to the chain, blocking while the queue is full.
// Filesystem and spawn failures are fatal and shut the run down.
func (m *Manager) Submit(filename string) error {
	_, err := m.writer.Write(m.sup.Context(), filename)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playlist.ErrStopped), errors.Is(err, workspace.ErrClosed):
		return ErrStopped
	default:
		err = fmt.Errorf("submit %q: %w", filename, err)
		m.fail(err)
		return err
	}
}

// Feed submits one filename per line of r until EOF, a fatal error or
// cancellation of ctx. Trailing CR/LF is stripped and blank lines are skipped.
// Cancellation and shutdown are not errors.
func (m *Manager) Feed(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := m.Submit(line); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				return err
			}
		}
	}
}

// Run feeds r while the monitor and the consumer-exit watcher run alongside.
// End of input shuts the run down cleanly. The returned error is the first
// fatal cause, nil after a clean end of input or cancellation.
func (m *Manager) Run(r io.Reader) error {
	g, gctx := errgroup.WithContext(m.sup.Context())

	g.Go(func() error {
		if err := m.monitor.Run(gctx); err != nil {
			if m.sup.Context().Err() != nil {
				m.logger.Debug().Err(err).Msg("monitor stopped during shutdown")
				return nil
			}
			m.fail(fmt.Errorf("monitor: %w", err))
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-m.sup.Exited():
			if m.sup.Context().Err() != nil {
				return nil
			}
			err := fmt.Errorf("%w: %v", ErrConsumerExited, m.sup.ExitErr())
			if tail := m.sup.Tail(1); len(tail) > 0 {
				err = fmt.Errorf("%w: %s", err, tail[0])
			}
			m.fail(err)
			return err
		}
	})

	g.Go(func() error {
		err := m.Feed(gctx, r)
		if err != nil {
			m.fail(err)
			return err
		}
		m.logger.Debug().Msg("end of input")
		_ = m.Shutdown()
		return nil
	})

	_ = g.Wait()
	if err := m.Shutdown(); err != nil {
		m.logger.Warn().Err(err).Msg("shutdown")
	}
	return m.Err()
}

// Shutdown stops the consumer and removes the workspace. Idempotent.
func (m *Manager) Shutdown() error {
	return m.sup.Shutdown()
}

// Err returns the first fatal error, if any.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

func (m *Manager) fail(err error) {
	m.failOnce.Do(func() {
		m.errMu.Lock()
		m.err = err
		m.errMu.Unlock()
		m.logger.Error().Err(err).Msg("fatal error, shutting down")
	})
	_ = m.Shutdown()
}
