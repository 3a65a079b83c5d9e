// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package feed

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/ffplaylist/internal/inspect"
	"github.com/ManuGH/ffplaylist/internal/playlist"
	"github.com/ManuGH/ffplaylist/internal/supervisor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeInspector struct {
	mu      sync.Mutex
	handles []inspect.Handle
	err     error
}

func (f *fakeInspector) OpenFiles(int) ([]inspect.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]inspect.Handle(nil), f.handles...), nil
}

func (f *fakeInspector) set(err error, handles ...inspect.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.handles = handles
}

const idleLoop = "while :; do sleep 0.05; done"

// fakeConsumer writes a shell script standing in for ffmpeg. $6 is the
// first playlist of the chain.
func fakeConsumer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newManager(t *testing.T, bin string, insp inspect.ProcessFileInspector) *Manager {
	t.Helper()
	m, err := New(context.Background(), Options{
		Supervisor: supervisor.Options{
			BinPath:     bin,
			OutputArgs:  []string{"-f", "null", "-"},
			GracePeriod: 2 * time.Second,
		},
		TempDir:      t.TempDir(),
		PollInterval: 20 * time.Millisecond,
		Inspector:    insp,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func mediaFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o600))
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func runAsync(m *Manager, r io.Reader) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Run(r) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func TestRun_SingleFileThenEndOfInput(t *testing.T) {
	media := t.TempDir()
	out := t.TempDir()
	x := mediaFile(t, media, "x.mkv")

	bin := fakeConsumer(t, `cp "$6" "`+out+`/first.tmp"
readlink "$(basename "$6" .ffconcat).mkv" > "`+out+`/link"
mv "`+out+`/first.tmp" "`+out+`/first"
`+idleLoop)
	m := newManager(t, bin, &fakeInspector{})

	pr, pw := io.Pipe()
	done := runAsync(m, pr)
	_, err := io.WriteString(pw, x+"\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(out, "first"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, pw.Close())

	require.NoError(t, waitDone(t, done))

	first, err := os.Open(filepath.Join(out, "first"))
	require.NoError(t, err)
	defer first.Close()
	seg, err := playlist.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, ".mkv", filepath.Ext(seg.Media))
	assert.Equal(t, playlist.Suffix, filepath.Ext(seg.Next))

	link, err := os.ReadFile(filepath.Join(out, "link"))
	require.NoError(t, err)
	assert.Equal(t, x, strings.TrimSpace(string(link)))

	assert.Equal(t, supervisor.Terminated, m.Supervisor().State())
	_, err = os.Stat(m.Workspace().Dir())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, m.Err())
}

// stoppingInspector blocks its first inspection until the run is stopped and
// then reports the consumer gone, as a real inspection racing the interrupt does.
type stoppingInspector struct {
	stopped <-chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *stoppingInspector) OpenFiles(int) ([]inspect.Handle, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.stopped
	return nil, errors.Join(inspect.ErrProcessGone, os.ErrNotExist)
}

func TestRun_EndOfInputDuringInspectionIsClean(t *testing.T) {
	media := t.TempDir()
	a := mediaFile(t, media, "a.mkv")
	insp := &stoppingInspector{entered: make(chan struct{})}
	m := newManager(t, fakeConsumer(t, idleLoop), insp)
	insp.stopped = m.Supervisor().Context().Done()

	pr, pw := io.Pipe()
	done := runAsync(m, pr)
	_, err := io.WriteString(pw, a+"\n")
	require.NoError(t, err)

	select {
	case <-insp.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer was never inspected")
	}
	require.NoError(t, pw.Close())

	require.NoError(t, waitDone(t, done))
	assert.NoError(t, m.Err())
	assert.Equal(t, supervisor.Terminated, m.Supervisor().State())
}

func TestRun_AccessDeniedTerminatesWithoutQueueMutation(t *testing.T) {
	media := t.TempDir()
	a := mediaFile(t, media, "a.mkv")
	insp := &fakeInspector{}
	insp.set(errors.Join(inspect.ErrAccessDenied, os.ErrPermission))
	m := newManager(t, fakeConsumer(t, idleLoop), insp)

	pr, pw := io.Pipe()
	defer pw.Close()
	done := runAsync(m, pr)
	_, err := io.WriteString(pw, a+"\n")
	require.NoError(t, err)

	err = waitDone(t, done)
	require.ErrorIs(t, err, inspect.ErrAccessDenied)
	assert.ErrorIs(t, m.Err(), inspect.ErrAccessDenied)
	assert.Equal(t, 1, m.Queue().Len())
	assert.Equal(t, supervisor.Terminated, m.Supervisor().State())
	assert.True(t, m.Workspace().Closed())
}

func TestRun_ConsumerExitIsFatal(t *testing.T) {
	media := t.TempDir()
	a := mediaFile(t, media, "a.mkv")
	m := newManager(t, fakeConsumer(t, `echo "$6: Invalid data found when processing input" >&2
exit 1`), &fakeInspector{})

	pr, pw := io.Pipe()
	defer pw.Close()
	done := runAsync(m, pr)
	_, err := io.WriteString(pw, a+"\n")
	require.NoError(t, err)

	err = waitDone(t, done)
	require.ErrorIs(t, err, ErrConsumerExited)
	assert.Contains(t, err.Error(), "Invalid data found when processing input", "last consumer line is part of the cause")
	assert.Equal(t, supervisor.Terminated, m.Supervisor().State())
}

func TestRun_BackpressureUntilRetirement(t *testing.T) {
	media := t.TempDir()
	a := mediaFile(t, media, "a.mkv")
	b := mediaFile(t, media, "b.mkv")
	c := mediaFile(t, media, "c.mkv")
	insp := &fakeInspector{}
	m := newManager(t, fakeConsumer(t, idleLoop), insp)

	pr, pw := io.Pipe()
	done := runAsync(m, pr)
	go func() {
		_, _ = io.WriteString(pw, a+"\n"+b+"\n"+c+"\n")
	}()

	require.Eventually(t, func() bool { return m.Queue().Len() == 2 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, m.Queue().Len(), "third submission must stall")
	assert.Equal(t, a, m.Queue().Entries()[0].TargetPath)

	// The consumer moves on to b: a retires, c gets in.
	insp.set(nil, inspect.Handle{FD: 3, Path: b})
	require.Eventually(t, func() bool {
		entries := m.Queue().Entries()
		return len(entries) == 2 && entries[0].TargetPath == b && entries[1].TargetPath == c
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, pw.Close())
	require.NoError(t, waitDone(t, done))
}

func TestFeed_StripsLineEndingsAndSkipsBlankLines(t *testing.T) {
	media := t.TempDir()
	a := mediaFile(t, media, "a.mkv")
	b := mediaFile(t, media, "b.mkv")
	m := newManager(t, fakeConsumer(t, idleLoop), &fakeInspector{})

	input := a + "\r\n\n   \r\n" + b + "\n"
	require.NoError(t, m.Feed(context.Background(), strings.NewReader(input)))

	var got []string
	for _, e := range m.Queue().Entries() {
		got = append(got, e.TargetPath)
	}
	assert.Equal(t, []string{a, b}, got)
	require.NoError(t, m.Shutdown())
}

func TestShutdown_TwiceEqualsOnce(t *testing.T) {
	media := t.TempDir()
	a := mediaFile(t, media, "a.mkv")
	m := newManager(t, fakeConsumer(t, idleLoop), &fakeInspector{})
	require.NoError(t, m.Submit(a))

	first := m.Shutdown()
	second := m.Shutdown()
	assert.Equal(t, first, second)
	assert.Equal(t, supervisor.Terminated, m.Supervisor().State())
	assert.True(t, m.Workspace().Closed())

	assert.ErrorIs(t, m.Submit(a), ErrStopped)
	assert.NoError(t, m.Err())
}

func TestShutdown_BeforeAnySubmission(t *testing.T) {
	m := newManager(t, "ffmpeg", &fakeInspector{})
	assert.Equal(t, 2, m.Queue().Capacity())
	require.NoError(t, m.Shutdown())
	assert.Equal(t, supervisor.Terminated, m.Supervisor().State())
	_, err := os.Stat(m.Workspace().Dir())
	assert.True(t, os.IsNotExist(err))
}
