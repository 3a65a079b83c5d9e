// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

// InputArgs returns the fixed input half of the consumer command line:
// no stats line, unsafe (relative) concat paths allowed, input read at its
// native rate, and the first playlist of the chain as the only input.
func InputArgs(playlist string) []string {
	return []string{
		"-nostats",
		"-safe", "0",
		"-re",
		"-i", playlist,
	}
}

// BuildArgs appends the caller supplied output arguments verbatim.
func BuildArgs(playlist string, output []string) []string {
	args := InputArgs(playlist)
	return append(args, output...)
}
