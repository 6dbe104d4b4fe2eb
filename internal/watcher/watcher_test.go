package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/arena/internal/watcher"
)

func startWatcher(t *testing.T, path string) <-chan struct{} {
	t.Helper()
	w, err := watcher.New(watcher.Config{Path: path, DebounceDur: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	onChange, err := w.Start()
	require.NoError(t, err)
	return onChange
}

func TestWatcher_DebounceMultipleAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.log")
	require.NoError(t, os.WriteFile(path, []byte("name: pogona\n"), 0o644))
	onChange := startWatcher(t, path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for i := 0; i < 10; i++ {
		_, err := fmt.Fprintf(f, "Summary of Trial %d:\n", i)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_NotifiesOnCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.log")
	onChange := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("name: pogona\n"), 0o644))

	select {
	case <-onChange:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected notification when the file appears")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.log")
	other := filepath.Join(dir, "config.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, os.WriteFile(other, []byte("initial"), 0o644))
	onChange := startWatcher(t, path)

	require.NoError(t, os.WriteFile(other, []byte("changed"), 0o644))

	select {
	case <-onChange:
		t.Fatal("should not notify for other files")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_StartFailsForMissingDirectory(t *testing.T) {
	w, err := watcher.New(watcher.DefaultConfig(filepath.Join(t.TempDir(), "missing", "experiment.log")))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	_, err = w.Start()
	require.Error(t, err)
}

func TestWatcher_Stop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.log")
	w, err := watcher.New(watcher.DefaultConfig(path))
	require.NoError(t, err)
	_, err = w.Start()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/data/exp/experiment.log")
	require.Equal(t, "/data/exp/experiment.log", cfg.Path)
	require.Equal(t, 200*time.Millisecond, cfg.DebounceDur)
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := watcher.New(watcher.Config{Path: filepath.Join(t.TempDir(), "experiment.log")})
	require.NoError(t, err)
	_, err = w.Start()
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
