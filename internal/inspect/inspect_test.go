// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package inspect

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(fs.ErrPermission), ErrAccessDenied)
	assert.ErrorIs(t, classify(fs.ErrNotExist), ErrProcessGone)

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
	assert.Equal(t, "other", Kind(other))
	assert.Equal(t, "access_denied", Kind(classify(fs.ErrPermission)))
}

func TestFind(t *testing.T) {
	handles := []Handle{{FD: 3, Path: "/a"}, {FD: 4, Path: "/b"}, {FD: 5, Path: "/b"}}
	h, ok := Find(handles, "/b")
	require.True(t, ok)
	assert.Equal(t, 4, h.FD)

	_, ok = Find(handles, "/c")
	assert.False(t, ok)
}

func TestParseLsof(t *testing.T) {
	out := strings.Join([]string{
		"p4242",
		"fcwd",
		"n/tmp/ffpl-1",
		"ftxt",
		"n/usr/bin/ffmpeg",
		"f0",
		"o0t0",
		"n/dev/null",
		"f3",
		"o0t1048576",
		"n/media/a.mp4",
		"f4",
		"o0x10",
		"n/media/b.mkv",
		"f5",
		"o0t0",
		"nTCP 127.0.0.1:1234",
		"",
	}, "\n")

	handles, err := parseLsof(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, []Handle{
		{FD: 0, Path: "/dev/null", Offset: 0},
		{FD: 3, Path: "/media/a.mp4", Offset: 1048576},
		{FD: 4, Path: "/media/b.mkv", Offset: 16},
	}, handles)
}

func TestParseLsofOffset(t *testing.T) {
	for in, want := range map[string]int64{"0t42": 42, "0x2a": 42, "42": 42} {
		got, err := parseLsofOffset(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLsofOffset("0tz")
	assert.Error(t, err)
}
