// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package queue tracks playlist entries that were handed to the consumer but
// not yet seen finished. It is the only state shared between the producer and
// the progress monitor.
package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/ManuGH/ffplaylist/internal/metrics"
)

// DefaultCapacity allows one playing entry plus one fully queued entry.
const DefaultCapacity = 2

// DefaultRecheck bounds a single backpressure wait before the queue is re-checked.
const DefaultRecheck = time.Second

var (
	// ErrStopped is returned by waits aborted through their context.
	ErrStopped = errors.New("queue: stopped")
	// ErrEmpty is returned by PopFront on an empty queue.
	ErrEmpty = errors.New("queue: empty")
)

// Entry is one submitted media item.
type Entry struct {
	Seq          uint64 // submission order, starting at 1
	TargetPath   string // absolute, symlink-resolved path of the media file
	LinkPath     string // symlink inside the workspace pointing at the media file
	PlaylistPath string // chained playlist naming LinkPath
}

// Queue is a FIFO of live entries with backpressure on WaitForRoom.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	seq      uint64
	capacity int
	recheck  time.Duration
	changed  chan struct{} // closed and replaced on every retirement
}

// New returns a queue that blocks producers once capacity entries are live.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{
		capacity: capacity,
		recheck:  DefaultRecheck,
		changed:  make(chan struct{}),
	}
}

// Capacity returns the number of live entries at which producers block.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Len returns the number of live entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Push appends e, assigning its sequence number. It never blocks; callers
// that need backpressure call WaitForRoom first.
func (q *Queue) Push(e Entry) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e.Seq = q.seq
	q.entries = append(q.entries, e)
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return e
}

// Front returns the oldest live entry without removing it.
func (q *Queue) Front() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Entries returns a snapshot of the live entries in submission order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// PopFront retires the head entry: it is removed from the queue, its playlist
// file and symlink are deleted and blocked producers are woken.
// Files that are already gone are not an error.
func (q *Queue) PopFront() (Entry, error) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return Entry{}, ErrEmpty
	}
	head := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	metrics.QueueDepth.Set(float64(len(q.entries)))
	close(q.changed)
	q.changed = make(chan struct{})
	q.mu.Unlock()

	err := errors.Join(removeIfExists(head.PlaylistPath), removeIfExists(head.LinkPath))
	return head, err
}

// WaitForRoom blocks while the queue holds capacity or more live entries.
// It re-checks at least every recheck interval and returns ErrStopped once
// ctx is done.
func (q *Queue) WaitForRoom(ctx context.Context) error {
	start := time.Now()
	waited := false
	defer func() {
		if waited {
			metrics.BackpressureWait.Observe(time.Since(start).Seconds())
		}
	}()

	for {
		if ctx.Err() != nil {
			return ErrStopped
		}
		q.mu.Lock()
		full := len(q.entries) >= q.capacity
		changed := q.changed
		q.mu.Unlock()
		if !full {
			return nil
		}
		waited = true

		timer := time.NewTimer(q.recheck)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrStopped
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
