// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package display renders monitor progress for a human on the terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/ManuGH/ffplaylist/internal/monitor"
)

// BarWidth is the width of the progress bar in cells.
const BarWidth = 48

// barMax is the resolution of the bar; fractions are rendered in permille.
const barMax = 1000

// Options selects what is shown.
type Options struct {
	// Verbose >= 1 prints the path of every newly active file.
	Verbose int
	// Progress draws a bar for the active file; requires Verbose >= 1.
	Progress bool
	// Out defaults to os.Stderr.
	Out io.Writer
}

// Display is a monitor.Reporter writing to a terminal.
type Display struct {
	opts Options

	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	seq     uint64
	started bool
}

// New returns a display. With Verbose == 0 every report is discarded.
func New(opts Options) *Display {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	return &Display{opts: opts}
}

var _ monitor.Reporter = (*Display)(nil)

// Report implements monitor.Reporter.
func (d *Display) Report(p monitor.Progress) {
	if d.opts.Verbose < 1 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !p.Resolved {
		d.finishBar()
		return
	}

	if !d.started || p.Entry.Seq != d.seq {
		d.finishBar()
		d.started = true
		d.seq = p.Entry.Seq
		_, _ = fmt.Fprintln(d.opts.Out, p.Entry.TargetPath)
	}

	if !d.opts.Progress {
		return
	}
	if d.bar == nil {
		d.bar = d.newBar(filepath.Base(p.Entry.TargetPath))
	}
	_ = d.bar.Set64(int64(p.Fraction * barMax))
}

// Close completes a bar still on screen.
func (d *Display) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishBar()
}

func (d *Display) newBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(barMax,
		progressbar.OptionSetWriter(d.opts.Out),
		progressbar.OptionSetWidth(BarWidth),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(0),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(d.opts.Out)
		}),
	)
}

// finishBar fills the current bar, matching a file that has been read to the end.
func (d *Display) finishBar() {
	if d.bar == nil {
		return
	}
	_ = d.bar.Finish()
	d.bar = nil
}
