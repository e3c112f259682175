package project

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// File identifies a file inside the workspace.
type File struct {
	// Path is the absolute, cleaned file system path.
	Path string

	// Rel is the slash-separated path relative to the workspace root.
	Rel string
}

// Name returns the base name of the file.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// String returns the workspace-relative path.
func (f File) String() string {
	return f.Rel
}

// skipDirs are never indexed.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
}

// Workspace is a project rooted at a directory.
//
// Workspace is safe for concurrent use.
type Workspace struct {
	root string

	mu      sync.RWMutex
	byName  map[string][]string // base name -> sorted relative paths
	indexed bool
}

// Open creates a workspace rooted at root.
func Open(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &PathError{Op: "open", Path: root, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &PathError{Op: "open", Path: root, Err: ErrNotFound}
		}
		return nil, &PathError{Op: "open", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &PathError{Op: "open", Path: root, Err: ErrNotDirectory}
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a file name or path to a workspace file.
//
// Absolute paths must lie inside the root. Paths with a directory part
// are taken relative to the root. A bare name is looked up in the file
// index; when several files share the name the shallowest one wins.
func (w *Workspace) Resolve(name string) (File, error) {
	// Lua chunk names mark file sources with a leading '@'.
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return File{}, &PathError{Op: "resolve", Path: name, Err: ErrNotFound}
	}

	if filepath.IsAbs(name) {
		return w.stat(name)
	}

	slashed := filepath.ToSlash(name)
	if strings.Contains(slashed, "/") {
		return w.stat(filepath.Join(w.root, filepath.FromSlash(slashed)))
	}

	if f, ok := w.lookup(name); ok {
		return f, nil
	}
	// The file may have been created since the last index.
	if err := w.Reindex(); err != nil {
		return File{}, err
	}
	if f, ok := w.lookup(name); ok {
		return f, nil
	}
	return File{}, &PathError{Op: "resolve", Path: name, Err: ErrNotFound}
}

// Reindex rebuilds the base name index by walking the workspace.
func (w *Workspace) Reindex() error {
	byName := make(map[string][]string)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() && path != w.root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != w.root && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		byName[d.Name()] = append(byName[d.Name()], filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return &PathError{Op: "index", Path: w.root, Err: err}
	}

	for _, rels := range byName {
		sort.Slice(rels, func(i, j int) bool {
			di, dj := strings.Count(rels[i], "/"), strings.Count(rels[j], "/")
			if di != dj {
				return di < dj
			}
			return rels[i] < rels[j]
		})
	}

	w.mu.Lock()
	w.byName = byName
	w.indexed = true
	w.mu.Unlock()
	return nil
}

// FileCount returns the number of indexed files.
func (w *Workspace) FileCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := 0
	for _, rels := range w.byName {
		n += len(rels)
	}
	return n
}

func (w *Workspace) lookup(name string) (File, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.indexed {
		return File{}, false
	}
	rels := w.byName[name]
	if len(rels) == 0 {
		return File{}, false
	}
	return w.file(filepath.Join(w.root, filepath.FromSlash(rels[0]))), true
}

func (w *Workspace) stat(path string) (File, error) {
	path = filepath.Clean(path)
	if !w.contains(path) {
		return File{}, &PathError{Op: "resolve", Path: path, Err: ErrNotInWorkspace}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, &PathError{Op: "resolve", Path: path, Err: ErrNotFound}
		}
		return File{}, &PathError{Op: "resolve", Path: path, Err: err}
	}
	if info.IsDir() {
		return File{}, &PathError{Op: "resolve", Path: path, Err: ErrIsDirectory}
	}
	return w.file(path), nil
}

func (w *Workspace) contains(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Workspace) file(path string) File {
	rel, _ := filepath.Rel(w.root, path)
	return File{Path: path, Rel: filepath.ToSlash(rel)}
}
