// Package workspace provides path-contained file operations and a filtered
// directory tree renderer over a single project root.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// excludedNames are never shown by Tree or walked by ListFiles.
var excludedNames = map[string]bool{
	"node_modules":      true,
	".git":              true,
	".DS_Store":         true,
	"dist":              true,
	"build":             true,
	"target":            true,
	".next":             true,
	"package-lock.json": true,
	".ralph":            true,
}

func isExcluded(name string) bool {
	if excludedNames[name] {
		return true
	}
	return strings.HasSuffix(name, ".tsbuildinfo")
}

// Workspace performs contained file operations under Root.
type Workspace struct {
	Root string
}

// New returns a Workspace scoped to root. root must already be an absolute,
// existing directory; callers that need to create it can call Mkdir(".").
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// Resolve joins rel onto Root and verifies the result does not escape Root,
// returning an error otherwise. This is the containment check the LLM
// Client's file-block writer also uses.
func Resolve(root, rel string) (string, error) {
	candidate := filepath.Clean(filepath.Join(root, rel))
	cleanRoot := filepath.Clean(root)

	if candidate == cleanRoot {
		return candidate, nil
	}
	if !strings.HasPrefix(candidate, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root %q", rel, root)
	}
	return candidate, nil
}

// Mkdir recursively creates rel (and parents) under the workspace root.
func (w *Workspace) Mkdir(rel string) error {
	path, err := Resolve(w.Root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("mkdir %q: %w", rel, err)
	}
	return nil
}

// ReadFile reads the UTF-8 contents of rel.
func (w *Workspace) ReadFile(rel string) (string, error) {
	path, err := Resolve(w.Root, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", rel, err)
	}
	return string(data), nil
}

// WriteFile writes content to rel, creating parent directories as needed.
func (w *Workspace) WriteFile(rel string, content string) error {
	path, err := Resolve(w.Root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("write %q: creating parent dir: %w", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %q: %w", rel, err)
	}
	return nil
}

// Delete recursively removes rel.
func (w *Workspace) Delete(rel string) error {
	path, err := Resolve(w.Root, rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete %q: %w", rel, err)
	}
	return nil
}

// ListFiles returns every regular file under the workspace root, relative to
// it, skipping excluded directories entirely.
func (w *Workspace) ListFiles() ([]string, error) {
	var files []string
	err := filepath.Walk(w.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == w.Root {
			return nil
		}
		name := info.Name()
		if info.IsDir() {
			if isExcluded(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcluded(name) {
			return nil
		}

		rel, relErr := filepath.Rel(w.Root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing files under %q: %w", w.Root, err)
	}
	return files, nil
}

type treeEntry struct {
	name  string
	isDir bool
}

// Tree renders the filtered ASCII directory tree rooted at the workspace
// root, in the familiar `├──`/`└──`/`│   ` layout, directories before their
// children, depth-first.
func (w *Workspace) Tree() (string, error) {
	var b strings.Builder
	b.WriteString(filepath.Base(w.Root))
	b.WriteString("\n")

	if err := writeTree(&b, w.Root, ""); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeTree(b *strings.Builder, dir string, prefix string) error {
	entries, err := readFilteredDir(dir)
	if err != nil {
		return fmt.Errorf("reading %q: %w", dir, err)
	}

	for i, entry := range entries {
		last := i == len(entries)-1
		connector := "├── "
		childPrefix := prefix + "│   "
		if last {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		b.WriteString(prefix)
		b.WriteString(connector)
		b.WriteString(entry.name)
		b.WriteString("\n")

		if entry.isDir {
			if err := writeTree(b, filepath.Join(dir, entry.name), childPrefix); err != nil {
				return err
			}
		}
	}
	return nil
}

func readFilteredDir(dir string) ([]treeEntry, error) {
	raw, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]treeEntry, 0, len(raw))
	for _, e := range raw {
		if isExcluded(e.Name()) {
			continue
		}
		entries = append(entries, treeEntry{name: e.Name(), isDir: e.IsDir()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return entries[i].name < entries[j].name
	})

	return entries, nil
}
