package executor

import (
	"sync"

	"agentflow/pkg/tools"
	"agentflow/pkg/workspace"
)

// ContextEntry records one dispatched call. Result is the literal tool
// output.
type ContextEntry struct {
	Args   map[string]any `json:"args"`
	Result tools.Result   `json:"result"`
	Tool   string         `json:"tool"`
	Goal   string         `json:"goal"`
	Step   int            `json:"step"`
}

// SharedContext accumulates entries across all tasks of a run. It is
// append-only.
type SharedContext struct {
	entries []ContextEntry
	mu      sync.Mutex
}

// NewSharedContext returns an empty accumulator.
func NewSharedContext() *SharedContext {
	return &SharedContext{}
}

// Append adds e.
func (s *SharedContext) Append(e ContextEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of all entries in order.
func (s *SharedContext) Entries() []ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ContextEntry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *SharedContext) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Preview is a successful preview_write recorded in the context.
type Preview struct {
	Result  tools.Result
	Path    string
	Content string
	Hash    string
}

// LatestPreview returns the newest successful preview_write for path.
func (s *SharedContext) LatestPreview(path string) (Preview, bool) {
	want := workspace.NormalizePath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.Tool != tools.PreviewWrite || !e.Result.OK() {
			continue
		}
		p := e.Result.String("path")
		if p == "" {
			p, _ = e.Args["path"].(string)
		}
		if workspace.NormalizePath(p) != want {
			continue
		}
		content := e.Result.String("content")
		if content == "" {
			content, _ = e.Args["content"].(string)
		}
		return Preview{Path: p, Content: content, Hash: e.Result.String("old_hash"), Result: e.Result}, true
	}
	return Preview{}, false
}

// Previewed reports whether any successful preview_write targeted path.
func (s *SharedContext) Previewed(path string) bool {
	_, ok := s.LatestPreview(path)
	return ok
}
