// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"strings"
	"sync"
)

// LineRing is a thread-safe ring buffer for capturing the last N lines of log output.
type LineRing struct {
	mu      sync.RWMutex
	lines   []string
	head    int
	size    int
	partial strings.Builder
}

// NewLineRing creates a LineRing with the specified capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{
		lines: make([]string, capacity),
		size:  capacity,
	}
}

// Write implements io.Writer. Output is split on newlines; an unterminated
// tail is kept until the rest of the line arrives.
func (r *LineRing) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.partial.String() + string(p)
	r.partial.Reset()

	parts := strings.Split(s, "\n")
	last := len(parts) - 1
	for i, line := range parts {
		if i == last {
			r.partial.WriteString(line)
			break
		}
		r.push(line)
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % r.size
}

// LastN returns the last N lines in chronological order, including an
// unterminated trailing line.
func (r *LineRing) LastN(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// r.head is the next write position, so it is also the oldest entry once wrapped.
	ordered := make([]string, 0, r.size+1)
	for i := 0; i < r.size; i++ {
		if line := r.lines[(r.head+i)%r.size]; line != "" {
			ordered = append(ordered, line)
		}
	}
	if tail := strings.TrimRight(r.partial.String(), "\r"); tail != "" {
		ordered = append(ordered, tail)
	}

	if len(ordered) <= n {
		return ordered
	}
	return ordered[len(ordered)-n:]
}
