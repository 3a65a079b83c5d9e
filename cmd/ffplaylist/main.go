// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command ffplaylist feeds filenames read from stdin, one per line, into a
// single long-running ffmpeg process through a chained concat playlist.
//
//	find /media -name '*.mkv' | ffplaylist -v -- -c copy -f mpegts udp://239.0.0.1:1234
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ffplaylist: %v\n", err)
		stop()
		os.Exit(1)
	}
}
