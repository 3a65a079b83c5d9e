// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/ffplaylist/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConsumer writes an executable shell script standing in for ffmpeg.
func fakeConsumer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newSupervisor(t *testing.T, bin string, opts Options) (*Supervisor, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)
	opts.BinPath = bin
	if opts.GracePeriod == 0 {
		opts.GracePeriod = 2 * time.Second
	}
	s := New(context.Background(), ws, opts)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s, ws
}

func TestSpawn_RunsConsumerInWorkspace(t *testing.T) {
	out := filepath.Join(t.TempDir(), "invocation")
	bin := fakeConsumer(t, `pwd > "`+out+`.tmp"; echo "$@" >> "`+out+`.tmp"; mv "`+out+`.tmp" "`+out+`"
while :; do sleep 0.05; done`)

	s, ws := newSupervisor(t, bin, Options{OutputArgs: []string{"-f", "null", "-"}})
	require.NoError(t, s.Spawn("first.ffconcat"))
	assert.Equal(t, Running, s.State())

	pid, ok := s.PID()
	require.True(t, ok)
	assert.Positive(t, pid)

	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	wantDir, err := filepath.EvalSymlinks(ws.Dir())
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
	assert.Equal(t, "-nostats -safe 0 -re -i first.ffconcat -f null -", lines[1])

	require.NoError(t, s.Shutdown())
	assert.Equal(t, Terminated, s.State())
	assert.True(t, ws.Closed())
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))

	_, ok = s.PID()
	assert.False(t, ok)
}

func TestSpawn_OnlyOnce(t *testing.T) {
	bin := fakeConsumer(t, "while :; do sleep 0.05; done")
	s, _ := newSupervisor(t, bin, Options{})

	require.NoError(t, s.Spawn("a.ffconcat"))
	assert.ErrorIs(t, s.Spawn("b.ffconcat"), ErrAlreadyStarted)
}

func TestSpawn_MissingBinary(t *testing.T) {
	s, _ := newSupervisor(t, filepath.Join(t.TempDir(), "does-not-exist"), Options{})

	err := s.Spawn("a.ffconcat")
	require.Error(t, err)
	assert.Equal(t, Unstarted, s.State())
}

func TestShutdown_BeforeSpawn(t *testing.T) {
	s, ws := newSupervisor(t, "ffmpeg", Options{})

	require.NoError(t, s.Shutdown())
	assert.Equal(t, Terminated, s.State())
	assert.Error(t, s.Context().Err())
	assert.True(t, ws.Closed())
	assert.ErrorIs(t, s.Spawn("a.ffconcat"), ErrStopped)
}

func TestShutdown_Idempotent(t *testing.T) {
	bin := fakeConsumer(t, "while :; do sleep 0.05; done")
	s, _ := newSupervisor(t, bin, Options{})
	require.NoError(t, s.Spawn("a.ffconcat"))

	first := s.Shutdown()
	second := s.Shutdown()
	assert.Equal(t, first, second)
	assert.Equal(t, Terminated, s.State())

	select {
	case <-s.Exited():
	default:
		t.Fatal("consumer still running after shutdown")
	}
}

func TestShutdown_EscalatesWhenInterruptIgnored(t *testing.T) {
	bin := fakeConsumer(t, "trap '' INT\nwhile :; do sleep 0.05; done")
	s, _ := newSupervisor(t, bin, Options{
		GracePeriod: 100 * time.Millisecond,
		KillTimeout: 2 * time.Second,
	})
	require.NoError(t, s.Spawn("a.ffconcat"))

	start := time.Now()
	require.NoError(t, s.Shutdown())
	assert.Less(t, time.Since(start), 2*time.Second)
	<-s.Exited()
	assert.Error(t, s.ExitErr())
}

func TestExited_ConsumerFailsOnItsOwn(t *testing.T) {
	bin := fakeConsumer(t, "echo 'first.ffconcat: Invalid data found' >&2\nexit 3")
	s, _ := newSupervisor(t, bin, Options{})
	require.NoError(t, s.Spawn("first.ffconcat"))

	select {
	case <-s.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("consumer exit not observed")
	}
	require.Error(t, s.ExitErr())
	assert.Equal(t, []string{"first.ffconcat: Invalid data found"}, s.Tail(5))

	_, ok := s.PID()
	assert.False(t, ok)
	assert.NoError(t, s.Shutdown())
}

func TestTail_CapturesStderrOnly(t *testing.T) {
	bin := fakeConsumer(t, "printf 'binary\\000media\\n'\necho 'error line' >&2\nexit 1")
	s, _ := newSupervisor(t, bin, Options{})
	require.NoError(t, s.Spawn("first.ffconcat"))

	select {
	case <-s.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("consumer exit not observed")
	}
	assert.Equal(t, []string{"error line"}, s.Tail(5))
	assert.NoError(t, s.Shutdown())
}
