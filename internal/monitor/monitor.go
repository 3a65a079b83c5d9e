// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package monitor infers which queued entry the consumer is playing, and how
// far into it, purely from the consumer's open file descriptors.
//
// Entries are retired in FIFO order once the consumer has observably moved
// past them:
//
//   - descriptor_changed: the head is open under a different descriptor than
//     the one it was first seen with, or its descriptor went backwards while
//     the next entry is the same file (the same file queued twice)
//   - closed: the head was seen open and no longer is
//   - superseded: the head was never seen, but a later entry's file is open
//
// An entry that was never observed open is kept while nothing after it is
// open, so a slow consumer start never drains the queue.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/ffplaylist/internal/inspect"
	"github.com/ManuGH/ffplaylist/internal/log"
	"github.com/ManuGH/ffplaylist/internal/metrics"
	"github.com/ManuGH/ffplaylist/internal/queue"
)

// DefaultInterval is the polling period of Run.
const DefaultInterval = time.Second

// Retirement reasons, also used as metric label values.
const (
	ReasonDescriptorChanged = "descriptor_changed"
	ReasonClosed            = "closed"
	ReasonSuperseded        = "superseded"
)

// Progress is the result of one observation.
type Progress struct {
	Entry    queue.Entry
	FD       int
	Fraction float64
	// Resolved is false when no queued entry is currently open.
	Resolved bool
}

// Reporter receives one Progress per tick.
type Reporter interface {
	Report(Progress)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Progress)

func (f ReporterFunc) Report(p Progress) { f(p) }

// Target is the observed consumer.
type Target interface {
	PID() (int, bool)
}

type tracked struct {
	seq    uint64
	fd     int
	offset int64
	ok     bool
}

// Monitor polls the consumer and retires finished entries from the queue.
// Tick and Run must not be called concurrently.
type Monitor struct {
	queue     *queue.Queue
	inspector inspect.ProcessFileInspector
	target    Target
	reporter  Reporter
	interval  time.Duration

	clock  clock
	stat   func(string) (os.FileInfo, error)
	logger zerolog.Logger

	active tracked
}

// New returns a monitor polling every interval (DefaultInterval when <= 0).
// A nil reporter discards progress.
func New(q *queue.Queue, inspector inspect.ProcessFileInspector, target Target, reporter Reporter, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if reporter == nil {
		reporter = ReporterFunc(func(Progress) {})
	}
	return &Monitor{
		queue:     q,
		inspector: inspector,
		target:    target,
		reporter:  reporter,
		interval:  interval,
		clock:     realClock{},
		stat:      os.Stat,
		logger:    log.WithComponent("monitor"),
	}
}

// Run ticks until ctx is done. It returns nil on cancellation and the first
// Tick error otherwise. A Tick that fails after ctx was cancelled is not an
// error: the consumer is being stopped underneath it.
func (m *Monitor) Run(ctx context.Context) error {
	t := m.clock.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			if ctx.Err() != nil {
				return nil
			}
			if err := m.Tick(); err != nil {
				if ctx.Err() != nil {
					m.logger.Debug().Err(err).Msg("tick failed during shutdown")
					return nil
				}
				return err
			}
		}
	}
}

// Tick performs one observation. Errors are returned before the queue is
// touched. Nothing is inspected while the queue is empty.
func (m *Monitor) Tick() error {
	pid, ok := m.target.PID()
	if !ok {
		return nil
	}
	if _, ok := m.queue.Front(); !ok {
		m.reporter.Report(Progress{})
		return nil
	}

	handles, err := m.inspector.OpenFiles(pid)
	if err != nil {
		kind := inspect.Kind(err)
		metrics.InspectErrors.WithLabelValues(kind).Inc()
		return fmt.Errorf("inspect consumer %d (%s): %w", pid, kind, err)
	}

	entries := m.queue.Entries()
	var (
		retire []string
		cur    *queue.Entry
		curH   inspect.Handle
	)

scan:
	for i := range entries {
		e := entries[i]
		isTracked := m.active.ok && m.active.seq == e.Seq
		h, open := lookup(handles, e.TargetPath, m.active, isTracked)

		switch {
		case open && isTracked && h.FD == m.active.fd && h.Offset < m.active.offset && nextIsSame(entries, i):
			// Closed and reopened under the same number between two ticks.
			retire = append(retire, ReasonDescriptorChanged)
		case open && (!isTracked || h.FD == m.active.fd):
			cur, curH = &entries[i], h
			break scan
		case open:
			retire = append(retire, ReasonDescriptorChanged)
		case isTracked:
			retire = append(retire, ReasonClosed)
		case laterOpen(entries[i+1:], e.TargetPath, handles):
			retire = append(retire, ReasonSuperseded)
		default:
			break scan
		}
	}

	var p Progress
	if cur != nil {
		fi, err := m.stat(cur.TargetPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", cur.TargetPath, err)
		}
		p = Progress{Entry: *cur, FD: curH.FD, Fraction: fraction(curH.Offset, fi.Size()), Resolved: true}
	}

	for _, reason := range retire {
		if err := m.retire(reason); err != nil {
			return err
		}
	}

	if p.Resolved {
		if !m.active.ok || m.active.seq != p.Entry.Seq {
			m.logger.Debug().
				Uint64(log.FieldSeq, p.Entry.Seq).
				Int(log.FieldFD, p.FD).
				Float64(log.FieldFraction, p.Fraction).
				Str(log.FieldPath, p.Entry.TargetPath).
				Msg("entry active")
		}
		m.active = tracked{seq: p.Entry.Seq, fd: p.FD, offset: curH.Offset, ok: true}
		metrics.ProgressRatio.Set(p.Fraction)
	}
	m.reporter.Report(p)
	return nil
}

func (m *Monitor) retire(reason string) error {
	e, err := m.queue.PopFront()
	if errors.Is(err, queue.ErrEmpty) {
		return nil
	}
	if m.active.ok && m.active.seq == e.Seq {
		m.active = tracked{}
	}
	metrics.EntriesRetired.WithLabelValues(reason).Inc()
	m.logger.Debug().
		Uint64(log.FieldSeq, e.Seq).
		Str(log.FieldReason, reason).
		Str(log.FieldPath, e.TargetPath).
		Msg("entry retired")
	if err != nil {
		return fmt.Errorf("retire entry %d: %w", e.Seq, err)
	}
	return nil
}

// lookup finds path among handles, preferring the descriptor the entry was
// tracked with when several are open.
func lookup(handles []inspect.Handle, path string, t tracked, isTracked bool) (inspect.Handle, bool) {
	if isTracked {
		for _, h := range handles {
			if h.Path == path && h.FD == t.fd {
				return h, true
			}
		}
	}
	return inspect.Find(handles, path)
}

func nextIsSame(entries []queue.Entry, i int) bool {
	return i+1 < len(entries) && entries[i+1].TargetPath == entries[i].TargetPath
}

func laterOpen(later []queue.Entry, path string, handles []inspect.Handle) bool {
	for _, e := range later {
		if e.TargetPath == path {
			continue
		}
		if _, ok := inspect.Find(handles, e.TargetPath); ok {
			return true
		}
	}
	return false
}

func fraction(offset, size int64) float64 {
	if size <= 0 || offset <= 0 {
		return 0
	}
	if offset >= size {
		return 1
	}
	return float64(offset) / float64(size)
}
