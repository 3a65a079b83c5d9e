// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix && !linux

package inspect

// New returns the platform default inspector.
func New() (ProcessFileInspector, error) {
	return &Lsof{}, nil
}
