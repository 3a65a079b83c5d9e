// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Header is the first line of every ffconcat script.
const Header = "ffconcat version 1.0"

var (
	ErrMissingHeader = errors.New("playlist: missing ffconcat header")
	ErrMalformed     = errors.New("playlist: malformed segment")
)

// Segment is one link of the chain: a media reference followed by a
// reference to the next playlist. Both are relative to the workspace.
type Segment struct {
	Media string
	Next  string
}

// Render returns the ffconcat representation of s.
func Render(s Segment) []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "file %s\n", Quote(s.Media))
	fmt.Fprintf(&buf, "file %s\n", Quote(s.Next))
	return buf.Bytes()
}

// Quote wraps path in single quotes the way the concat demuxer tokenizes
// them; embedded single quotes become '\''.
func Quote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// Parse reads a segment written by Render. Comments and blank lines are
// ignored; any directive other than "file" is rejected.
func Parse(r io.Reader) (Segment, error) {
	sc := bufio.NewScanner(r)
	var files []string
	header := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !header {
			if line != Header {
				return Segment{}, ErrMissingHeader
			}
			header = true
			continue
		}
		directive, rest, _ := strings.Cut(line, " ")
		if directive != "file" {
			return Segment{}, fmt.Errorf("%w: unexpected directive %q", ErrMalformed, directive)
		}
		path, err := unquote(strings.TrimSpace(rest))
		if err != nil {
			return Segment{}, err
		}
		files = append(files, path)
	}
	if err := sc.Err(); err != nil {
		return Segment{}, err
	}
	if !header {
		return Segment{}, ErrMissingHeader
	}
	if len(files) != 2 {
		return Segment{}, fmt.Errorf("%w: want 2 file directives, got %d", ErrMalformed, len(files))
	}
	return Segment{Media: files[0], Next: files[1]}, nil
}

// unquote undoes Quote and the backslash escaping accepted by the demuxer.
func unquote(token string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(token); i++ {
		switch c := token[i]; c {
		case '\'':
			end := strings.IndexByte(token[i+1:], '\'')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated quote in %q", ErrMalformed, token)
			}
			b.WriteString(token[i+1 : i+1+end])
			i += end + 1
		case '\\':
			if i+1 < len(token) {
				i++
				b.WriteByte(token[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty path", ErrMalformed)
	}
	return b.String(), nil
}
