// Package workspace holds the repository index snapshot used to scope tool
// calls, and the manager that keeps it fresh.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	// IndexDir is the index directory under the workspace root.
	IndexDir = ".index"
	// IndexFile is the index file name inside IndexDir.
	IndexFile = "index.json"
)

// Symbols lists the top-level names defined in one Python file.
type Symbols struct {
	Path      string   `json:"path"`
	Classes   []string `json:"classes"`
	Functions []string `json:"functions"`
	Globals   []string `json:"globals"`
}

// Index is a read-only snapshot of the workspace.
type Index struct {
	Files     []string  `json:"files"`
	PySymbols []Symbols `json:"py_symbols"`
	Timestamp float64   `json:"timestamp"`
	Truncated bool      `json:"truncated"`

	set  map[string]struct{}
	once sync.Once
}

// IndexPath returns the index file location for base.
func IndexPath(base string) string {
	return filepath.Join(base, IndexDir, IndexFile)
}

// NormalizePath converts p to the form stored in the index: forward
// slashes, no leading "./", cleaned.
func NormalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// Empty returns an index with no files.
func Empty() *Index {
	return &Index{Files: []string{}, PySymbols: []Symbols{}}
}

// Load reads an index file. A missing or unreadable file yields an empty
// index together with the cause, so callers may log and carry on.
func Load(file string) (*Index, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("read index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return Empty(), fmt.Errorf("decode index %s: %w", file, err)
	}
	for i, f := range ix.Files {
		ix.Files[i] = NormalizePath(f)
	}
	if ix.Files == nil {
		ix.Files = []string{}
	}
	if ix.PySymbols == nil {
		ix.PySymbols = []Symbols{}
	}
	return &ix, nil
}

// Save writes ix to file atomically.
func Save(file string, ix *Index) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), ".index-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), file)
}

// Contains reports whether p, once normalized, is an indexed file.
func (ix *Index) Contains(p string) bool {
	if ix == nil {
		return false
	}
	ix.once.Do(func() {
		ix.set = make(map[string]struct{}, len(ix.Files))
		for _, f := range ix.Files {
			ix.set[NormalizePath(f)] = struct{}{}
		}
	})
	_, ok := ix.set[NormalizePath(p)]
	return ok
}

// TestFiles returns indexed Python test modules (test_*.py or *_test.py).
func (ix *Index) TestFiles() []string {
	var out []string
	for _, f := range ix.Files {
		base := path.Base(f)
		if !strings.HasSuffix(base, ".py") {
			continue
		}
		if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// FirstMentioned returns the first indexed path that text mentions
// literally, in index order.
func (ix *Index) FirstMentioned(text string) (string, bool) {
	norm := strings.ReplaceAll(text, "\\", "/")
	for _, f := range ix.Files {
		if strings.Contains(norm, f) {
			return f, true
		}
	}
	return "", false
}
