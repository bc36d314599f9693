package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"agentflow/pkg/logx"
)

// Registry is an ordered set of tools keyed by name.
type Registry struct {
	tools  map[string]Tool
	logger *logx.Logger
	order  []string
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), logger: logx.NewLogger("tools")}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for static catalogues.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Descriptors returns the catalogue in registration order, omitting the
// named tools.
func (r *Registry) Descriptors(exclude ...string) []Descriptor {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if skip[name] {
			continue
		}
		out = append(out, Describe(r.tools[name]))
	}
	return out
}

// RequiresApproval reports whether name needs human approval. Unknown
// tools always do.
func (r *Registry) RequiresApproval(name string) bool {
	t, ok := r.Get(name)
	if !ok {
		return true
	}
	return t.RequiresApproval()
}

// Dispatch invokes name with args. Unknown tools yield a failed result.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	t, ok := r.Get(name)
	if !ok {
		return Failuref("unknown tool: %s", name)
	}
	if err := ctx.Err(); err != nil {
		return Failure(err)
	}
	logx.Debug(ctx, "tools", "dispatch %s", name)
	res := t.Invoke(ctx, args)
	if res == nil {
		res = Failuref("%s returned no result", name)
	}
	if _, ok := res["ok"]; !ok {
		res["ok"] = false
	}
	if !res.OK() {
		r.logger.Debug("%s failed: %s", name, res.Error())
	}
	return res
}

// NormalizeName maps oracle spellings of a tool name onto registry names:
// trimmed, lower-cased, spaces and dashes as underscores, without a
// "functions." prefix.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "functions.")
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	return n
}
