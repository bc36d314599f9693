package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Definition kinds, named after the Python AST node types.
const (
	KindClass         = "ClassDef"
	KindFunction      = "FunctionDef"
	KindAsyncFunction = "AsyncFunctionDef"
)

// Definition is one class or function found in a Python file.
type Definition struct {
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	Args      []string `json:"args,omitempty"`
	Lineno    int      `json:"lineno"`
	EndLineno int      `json:"end_lineno"`
	// TopLevel is false for methods and nested definitions.
	TopLevel bool `json:"-"`
}

// PyOutline is the parsed structure of one Python file.
type PyOutline struct {
	Definitions []Definition
	Imports     []string
	Globals     []string
}

// ParsePython parses src with tree-sitter. Syntax errors do not fail the
// parse; whatever the grammar recovers is reported.
func ParsePython(ctx context.Context, src []byte) (*PyOutline, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	defer tree.Close()

	out := &PyOutline{}
	root := tree.RootNode()
	walkDefinitions(root, src, true, out)
	out.Imports = collectImports(root, src)
	out.Globals = collectGlobals(root, src)
	sort.SliceStable(out.Definitions, func(i, j int) bool {
		a, b := out.Definitions[i], out.Definitions[j]
		if a.Lineno != b.Lineno {
			return a.Lineno < b.Lineno
		}
		return a.Name < b.Name
	})
	return out, nil
}

func text(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}

func walkDefinitions(node *sitter.Node, src []byte, topLevel bool, out *PyOutline) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "class_definition":
			if def, ok := definition(child, child, src, topLevel); ok {
				out.Definitions = append(out.Definitions, def)
			}
			if body := child.ChildByFieldName("body"); body != nil {
				walkDefinitions(body, src, false, out)
			}
		case "function_definition":
			if def, ok := definition(child, child, src, topLevel); ok {
				out.Definitions = append(out.Definitions, def)
			}
			if body := child.ChildByFieldName("body"); body != nil {
				walkDefinitions(body, src, false, out)
			}
		case "decorated_definition":
			inner := child.ChildByFieldName("definition")
			if inner == nil {
				continue
			}
			if def, ok := definition(inner, child, src, topLevel); ok {
				out.Definitions = append(out.Definitions, def)
			}
			if body := inner.ChildByFieldName("body"); body != nil {
				walkDefinitions(body, src, false, out)
			}
		default:
			// Compound statements (if/try/with) keep the current level.
			walkDefinitions(child, src, topLevel, out)
		}
	}
}

// definition reads node; span is the node whose lines are reported, which
// includes decorators for decorated definitions.
func definition(node, span *sitter.Node, src []byte, topLevel bool) (Definition, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Definition{}, false
	}
	def := Definition{
		Name:      text(nameNode, src),
		Lineno:    int(span.StartPoint().Row) + 1,
		EndLineno: int(span.EndPoint().Row) + 1,
		TopLevel:  topLevel,
	}
	if node.Type() == "class_definition" {
		def.Type = KindClass
		return def, true
	}
	def.Type = KindFunction
	if node.ChildCount() > 0 && node.Child(0).Type() == "async" {
		def.Type = KindAsyncFunction
	}
	def.Args = parameters(node.ChildByFieldName("parameters"), src)
	return def, true
}

func parameters(params *sitter.Node, src []byte) []string {
	args := []string{}
	if params == nil {
		return args
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			args = append(args, text(p, src))
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				args = append(args, text(name, src))
			}
		case "typed_parameter":
			if p.NamedChildCount() > 0 && p.NamedChild(0).Type() == "identifier" {
				args = append(args, text(p.NamedChild(0), src))
			}
		}
	}
	return args
}

func collectImports(root *sitter.Node, src []byte) []string {
	seen := map[string]bool{}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				switch c.Type() {
				case "dotted_name":
					seen[text(c, src)] = true
				case "aliased_import":
					if name := c.ChildByFieldName("name"); name != nil {
						seen[text(name, src)] = true
					}
				}
			}
			return
		case "import_from_statement":
			mod := ""
			if m := n.ChildByFieldName("module_name"); m != nil {
				mod = strings.TrimLeft(text(m, src), ".")
			}
			seen[mod] = true
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(root)

	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// collectGlobals returns names assigned at module level.
func collectGlobals(root *sitter.Node, src []byte) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
			continue
		}
		assign := stmt.NamedChild(0)
		if assign.Type() != "assignment" && assign.Type() != "augmented_assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil {
			continue
		}
		if left.Type() == "identifier" {
			add(text(left, src))
			continue
		}
		for j := 0; j < int(left.NamedChildCount()); j++ {
			if c := left.NamedChild(j); c.Type() == "identifier" {
				add(text(c, src))
			}
		}
	}
	return out
}

// Symbols splits an outline into index symbol lists: every class,
// top-level functions and module globals.
func (o *PyOutline) Symbols() (classes, functions, globals []string) {
	classes, functions = []string{}, []string{}
	for _, d := range o.Definitions {
		switch {
		case d.Type == KindClass:
			classes = append(classes, d.Name)
		case d.TopLevel:
			functions = append(functions, d.Name)
		}
	}
	globals = o.Globals
	if globals == nil {
		globals = []string{}
	}
	return classes, functions, globals
}
