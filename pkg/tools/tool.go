// Package tools provides the workspace tool catalogue and its registry.
package tools

import (
	"context"
	"fmt"
)

// Property describes one tool parameter.
type Property struct {
	Items       *Property `json:"items,omitempty"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
}

// Schema is the JSON-schema subset used to describe tool parameters.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Type       string              `json:"type"`
	Required   []string            `json:"required"`
}

// Requires reports whether param is required.
func (s Schema) Requires(param string) bool {
	for _, r := range s.Required {
		if r == param {
			return true
		}
	}
	return false
}

// Template returns an argument skeleton keyed by parameter name with the
// parameter type as placeholder value.
func (s Schema) Template() map[string]string {
	out := make(map[string]string, len(s.Properties))
	for name, p := range s.Properties {
		out[name] = p.Type
	}
	return out
}

// Result is the outcome of one tool call. It always has "ok" and, on
// failure, "error".
type Result map[string]any

// OK reports the "ok" field.
func (r Result) OK() bool {
	ok, _ := r["ok"].(bool)
	return ok
}

// Error returns the "error" field, if any.
func (r Result) Error() string {
	s, _ := r["error"].(string)
	return s
}

// String returns a string field or "".
func (r Result) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns a numeric field as int. JSON-decoded floats are accepted.
func (r Result) Int(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Success builds a successful result from key/value fields.
func Success(fields map[string]any) Result {
	r := Result{"ok": true}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

// Failure builds a failed result.
func Failure(err error) Result {
	return Result{"ok": false, "error": err.Error()}
}

// Failuref builds a failed result from a format string.
func Failuref(format string, args ...any) Result {
	return Result{"ok": false, "error": fmt.Sprintf(format, args...)}
}

// Call is a fully resolved tool invocation.
type Call struct {
	Args map[string]any `json:"args"`
	Tool string         `json:"name"`
}

// Tool is one entry of the catalogue.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	RequiresApproval() bool
	Invoke(ctx context.Context, args map[string]any) Result
}

// Descriptor is the prompt-facing view of a tool.
type Descriptor struct {
	Parameters       Schema `json:"parameters"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	RequiresApproval bool   `json:"requires_approval"`
}

// Describe returns the descriptor of t.
func Describe(t Tool) Descriptor {
	return Descriptor{
		Name:             t.Name(),
		Description:      t.Description(),
		Parameters:       t.Schema(),
		RequiresApproval: t.RequiresApproval(),
	}
}

// Def is a Tool assembled from plain fields.
type Def struct {
	Fn       func(ctx context.Context, args map[string]any) Result
	Params   Schema
	ToolName string
	Desc     string
	Approval bool
}

// Name implements Tool.
func (d *Def) Name() string { return d.ToolName }

// Description implements Tool.
func (d *Def) Description() string { return d.Desc }

// Schema implements Tool.
func (d *Def) Schema() Schema { return d.Params }

// RequiresApproval implements Tool.
func (d *Def) RequiresApproval() bool { return d.Approval }

// Invoke implements Tool. A panicking tool is reported as a failed result.
func (d *Def) Invoke(ctx context.Context, args map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failuref("%s panicked: %v", d.ToolName, r)
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return d.Fn(ctx, args)
}

func object(required []string, props map[string]Property) Schema {
	if required == nil {
		required = []string{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

func str(desc string) Property  { return Property{Type: "string", Description: desc} }
func integer(desc string) Property { return Property{Type: "integer", Description: desc} }
func boolean(desc string) Property { return Property{Type: "boolean", Description: desc} }
