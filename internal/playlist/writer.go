// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playlist writes the chained ffconcat playlists consumed by ffmpeg.
//
// Every segment names one media symlink and then the next playlist file. The
// next file always exists (empty) before a segment references it, so the
// consumer reaching the end of the chain opens a valid file instead of
// failing.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2/maybe"
	"github.com/rs/zerolog"

	"github.com/ManuGH/ffplaylist/internal/log"
	"github.com/ManuGH/ffplaylist/internal/metrics"
	"github.com/ManuGH/ffplaylist/internal/queue"
	"github.com/ManuGH/ffplaylist/internal/workspace"
)

// Suffix is the extension of generated playlists. It differs from every
// media extension so a link never collides with its own playlist.
const Suffix = ".ffconcat"

// ErrStopped is returned when a write is refused or aborted by shutdown.
var ErrStopped = errors.New("playlist: stopped")

// Spawner starts the consumer on the first playlist of the chain.
type Spawner interface {
	Spawn(playlistPath string) error
}

// Writer appends segments to the chain. Writes are serialized.
type Writer struct {
	ws      *workspace.Workspace
	queue   *queue.Queue
	spawner Spawner
	logger  zerolog.Logger

	mu      sync.Mutex
	pending string
	spawned bool
}

// NewWriter returns a writer that stores segments in ws and records them in q.
func NewWriter(ws *workspace.Workspace, q *queue.Queue, spawner Spawner) *Writer {
	return &Writer{
		ws:      ws,
		queue:   q,
		spawner: spawner,
		logger:  log.WithComponent("playlist"),
	}
}

// Write appends filename to the chain. It blocks while the queue is full and
// returns ErrStopped without touching the workspace once ctx is done.
// On the first successful write the consumer is spawned.
func (w *Writer) Write(ctx context.Context, filename string) (queue.Entry, error) {
	if ctx.Err() != nil {
		return queue.Entry{}, ErrStopped
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == "" {
		p, err := w.ws.CreateEmpty(Suffix)
		if err != nil {
			return queue.Entry{}, fmt.Errorf("create pending playlist: %w", err)
		}
		w.pending = p
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		return queue.Entry{}, fmt.Errorf("resolve %q: %w", filename, err)
	}

	if err := w.queue.WaitForRoom(ctx); err != nil {
		return queue.Entry{}, ErrStopped
	}

	target := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		target = resolved
	}

	current := w.pending
	link := strings.TrimSuffix(current, Suffix) + filepath.Ext(abs)
	if err := os.Symlink(abs, link); err != nil {
		return queue.Entry{}, fmt.Errorf("link media: %w", err)
	}

	next, err := w.ws.CreateEmpty(Suffix)
	if err != nil {
		return queue.Entry{}, fmt.Errorf("create next playlist: %w", err)
	}

	relLink, err := w.ws.Rel(link)
	if err != nil {
		return queue.Entry{}, err
	}
	relNext, err := w.ws.Rel(next)
	if err != nil {
		return queue.Entry{}, err
	}

	// The consumer sees either the empty pending file or the whole segment.
	if err := maybe.WriteFile(current, Render(Segment{Media: relLink, Next: relNext}), 0o600); err != nil {
		return queue.Entry{}, fmt.Errorf("write playlist: %w", err)
	}

	entry := w.queue.Push(queue.Entry{
		TargetPath:   target,
		LinkPath:     link,
		PlaylistPath: current,
	})
	w.pending = next
	metrics.EntriesSubmitted.Inc()

	w.logger.Debug().
		Uint64(log.FieldSeq, entry.Seq).
		Str(log.FieldPath, entry.TargetPath).
		Str(log.FieldLinkPath, filepath.Base(link)).
		Str(log.FieldPlaylistPath, filepath.Base(current)).
		Int(log.FieldQueueLen, w.queue.Len()).
		Msg("segment appended")

	if !w.spawned {
		if err := w.spawner.Spawn(current); err != nil {
			return entry, fmt.Errorf("spawn consumer: %w", err)
		}
		w.spawned = true
	}
	return entry, nil
}
