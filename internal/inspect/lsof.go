// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inspect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Lsof inspects processes by running lsof in field output mode. It serves
// the unix platforms without a proc filesystem.
type Lsof struct {
	BinPath string
	Timeout time.Duration
}

// OpenFiles implements ProcessFileInspector.
func (l *Lsof) OpenFiles(pid int) ([]Handle, error) {
	bin := l.BinPath
	if bin == "" {
		bin = "lsof"
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// -o forces offsets instead of sizes, -F selects fd/offset/name fields.
	cmd := exec.CommandContext(ctx, bin, "-n", "-P", "-o", "-a", "-p", strconv.Itoa(pid), "-F", "fon") // #nosec G204
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(out) == 0 {
			// lsof exits 1 with no output when the pid does not exist.
			if strings.Contains(strings.ToLower(stderr.String()), "permission denied") {
				return nil, errors.Join(ErrAccessDenied, err)
			}
			return nil, errors.Join(ErrProcessGone, err)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("run lsof: %w", err)
		}
	}
	return parseLsof(bytes.NewReader(out))
}

// parseLsof reads `lsof -F fon` output: one field per line, the first byte
// names the field. f starts a new descriptor set.
func parseLsof(r io.Reader) ([]Handle, error) {
	var (
		handles []Handle
		cur     *Handle
		valid   bool
	)
	flush := func() {
		if cur != nil && valid && strings.HasPrefix(cur.Path, "/") {
			handles = append(handles, *cur)
		}
		cur, valid = nil, false
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		field, value := line[0], line[1:]
		switch field {
		case 'p':
			flush()
		case 'f':
			flush()
			fd, err := strconv.Atoi(value)
			if err != nil {
				// cwd, txt, mem and friends are not descriptors.
				continue
			}
			cur = &Handle{FD: fd}
			valid = true
		case 'o':
			if cur == nil {
				continue
			}
			off, err := parseLsofOffset(value)
			if err != nil {
				valid = false
				continue
			}
			cur.Offset = off
		case 'n':
			if cur != nil {
				cur.Path = value
			}
		}
	}
	flush()
	return handles, sc.Err()
}

func parseLsofOffset(v string) (int64, error) {
	switch {
	case strings.HasPrefix(v, "0t"):
		return strconv.ParseInt(v[2:], 10, 64)
	case strings.HasPrefix(v, "0x"):
		return strconv.ParseInt(v[2:], 16, 64)
	default:
		return strconv.ParseInt(v, 10, 64)
	}
}
