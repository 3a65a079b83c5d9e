// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Walk follows the chain the way the consumer does, starting at first, and
// returns the media reference of every written segment in order. The walk
// ends at the pending (still empty) playlist.
func Walk(dir, first string) ([]string, error) {
	var media []string
	seen := make(map[string]struct{})
	current := first
	for {
		path := current
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if _, dup := seen[path]; dup {
			return media, fmt.Errorf("playlist chain loops at %s", path)
		}
		seen[path] = struct{}{}

		data, err := os.ReadFile(path)
		if err != nil {
			return media, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return media, nil
		}
		seg, err := Parse(bytes.NewReader(data))
		if err != nil {
			return media, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		media = append(media, seg.Media)
		current = seg.Next
	}
}
