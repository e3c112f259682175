package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()

	files := []string{
		"Main.lua",
		"lib/util.lua",
		"lib/deep/util.lua",
		"scenes/a.lua",
		".git/a.lua",
	}
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("-- "+f), 0o644))
	}

	ws, err := Open(root)
	require.NoError(t, err)
	return ws
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := Open(filepath.Join(dir, "missing"))
	assert.True(t, IsNotFound(err))

	_, err = Open(file)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestResolveBareName(t *testing.T) {
	ws := setupWorkspace(t)

	f, err := ws.Resolve("a.lua")
	require.NoError(t, err)
	assert.Equal(t, "scenes/a.lua", f.Rel)
	assert.Equal(t, "a.lua", f.Name())
	assert.True(t, filepath.IsAbs(f.Path))

	// Shallowest match wins.
	f, err = ws.Resolve("util.lua")
	require.NoError(t, err)
	assert.Equal(t, "lib/util.lua", f.Rel)
}

func TestResolveRelativeAndAbsolute(t *testing.T) {
	ws := setupWorkspace(t)

	f, err := ws.Resolve("lib/deep/util.lua")
	require.NoError(t, err)
	assert.Equal(t, "lib/deep/util.lua", f.Rel)

	f, err = ws.Resolve(filepath.Join(ws.Root(), "Main.lua"))
	require.NoError(t, err)
	assert.Equal(t, "Main.lua", f.Rel)

	f, err = ws.Resolve("@Main.lua")
	require.NoError(t, err)
	assert.Equal(t, "Main.lua", f.String())
}

func TestResolveErrors(t *testing.T) {
	ws := setupWorkspace(t)

	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrNotFound},
		{"missing bare", "nope.lua", ErrNotFound},
		{"missing relative", "lib/nope.lua", ErrNotFound},
		{"directory", "lib/deep", ErrIsDirectory},
		{"outside root", filepath.Join(filepath.Dir(ws.Root()), "x.lua"), ErrNotInWorkspace},
		{"escapes root", "../x.lua", ErrNotInWorkspace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ws.Resolve(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var pathErr *PathError
			assert.ErrorAs(t, err, &pathErr)
		})
	}
}

func TestResolveSkipsVCSDirs(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, ws.Reindex())
	assert.Equal(t, 4, ws.FileCount())
}

func TestResolveReindexesOnMiss(t *testing.T) {
	ws := setupWorkspace(t)

	_, err := ws.Resolve("Main.lua")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ws.Root(), "scenes", "late.lua"), nil, 0o644))

	f, err := ws.Resolve("late.lua")
	require.NoError(t, err)
	assert.Equal(t, "scenes/late.lua", f.Rel)
}
