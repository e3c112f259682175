package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moaidebug.toml")
	require.NoError(t, os.WriteFile(path, []byte("[debug]\nport = 9000\n"), 0o644))

	reloaded := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, path, w.Path())

	require.NoError(t, os.WriteFile(path, []byte("[debug]\nport = 9100\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9100, cfg.Debug.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatchReportsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moaidebug.toml")

	errs := make(chan error, 4)
	w, err := Watch(path, func(cfg *Config, err error) {
		if err != nil {
			errs <- err
		}
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	// Created after the watch started.
	require.NoError(t, os.WriteFile(path, []byte("[debug\n"), 0o644))

	select {
	case err := <-errs:
		var perr *ParseError
		assert.ErrorAs(t, err, &perr)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reload error")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moaidebug.toml")

	calls := make(chan struct{}, 4)
	w, err := Watch(path, func(*Config, error) { calls <- struct{}{} }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o644))

	select {
	case <-calls:
		t.Fatal("unexpected reload")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
