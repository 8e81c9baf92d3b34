package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("panel: {base_url: one}"), 0644))

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	loader.SetOnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})

	watcher, err := NewWatcher(loader, logging.NewLogger(logging.WithLevel(logging.LevelError)))
	require.NoError(t, err)
	watcher.debounce = 20 * time.Millisecond
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte("panel: {base_url: two}"), 0644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "two", cfg.Panel.BaseURL)
	case <-time.After(5 * time.Second):
		t.Fatal("reload never happened")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("panel: {base_url: one}"), 0644))

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	loader.SetOnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})

	watcher, err := NewWatcher(loader, logging.NewLogger(logging.WithLevel(logging.LevelError)))
	require.NoError(t, err)
	watcher.debounce = 20 * time.Millisecond
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0644))

	select {
	case <-changed:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("panel: {base_url: one}"), 0644))

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	watcher, err := NewWatcher(loader, logging.NewLogger(logging.WithLevel(logging.LevelError)))
	require.NoError(t, err)
	require.NoError(t, watcher.Start())

	watcher.Stop()
	watcher.Stop()
}
