package tools

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"agentflow/pkg/indexer"
	"agentflow/pkg/utils"
)

func (b *Toolbox) outline(ctx context.Context, path string) (*indexer.PyOutline, error) {
	src, err := os.ReadFile(b.resolve(path))
	if err != nil {
		return nil, err
	}
	return indexer.ParsePython(ctx, src)
}

func (b *Toolbox) astOutline(ctx context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	o, err := b.outline(ctx, path)
	if err != nil {
		return Failure(err)
	}
	items := make([]indexer.Definition, len(o.Definitions))
	copy(items, o.Definitions)
	return Success(map[string]any{"path": path, "items": items})
}

func (b *Toolbox) astImports(ctx context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	o, err := b.outline(ctx, path)
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"path": path, "imports": o.Imports})
}

var symbolTypes = map[string]string{
	"class":            indexer.KindClass,
	"classdef":         indexer.KindClass,
	"function":         indexer.KindFunction,
	"functiondef":      indexer.KindFunction,
	"asyncfunction":    indexer.KindAsyncFunction,
	"asyncfunctiondef": indexer.KindAsyncFunction,
}

func (b *Toolbox) astFind(ctx context.Context, args map[string]any) Result {
	path := utils.StringArg(args, "path")
	name := utils.StringArg(args, "name")
	kind := strings.ToLower(utils.StringArg(args, "symbol_type"))
	if mapped, ok := symbolTypes[kind]; ok {
		kind = strings.ToLower(mapped)
	}

	o, err := b.outline(ctx, path)
	if err != nil {
		return Failure(err)
	}
	matches := []map[string]any{}
	for _, d := range o.Definitions {
		if name != "" && d.Name != name {
			continue
		}
		if kind != "" && strings.ToLower(d.Type) != kind {
			continue
		}
		matches = append(matches, map[string]any{"type": d.Type, "name": d.Name, "lineno": d.Lineno, "end_lineno": d.EndLineno})
	}
	return Success(map[string]any{"path": path, "name": name, "matches": matches})
}

type pyproject struct {
	Project struct {
		Dependencies []string            `toml:"dependencies"`
		Optional     map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// projectDeps reads requirements.txt and pyproject.toml under root.
func (b *Toolbox) projectDeps(_ context.Context, args map[string]any) Result {
	root := utils.StringArg(args, "root")
	dir := b.resolve(root)

	requirements, err := readRequirements(filepath.Join(dir, "requirements.txt"))
	if err != nil {
		return Failure(err)
	}

	deps := []string{}
	optional := map[string][]string{}
	poetry := map[string]any{}
	var pp pyproject
	_, err = toml.DecodeFile(filepath.Join(dir, "pyproject.toml"), &pp)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Failure(err)
	default:
		deps = append(deps, pp.Project.Dependencies...)
		for k, v := range pp.Project.Optional {
			optional[k] = v
		}
		for k, v := range pp.Tool.Poetry.Dependencies {
			if k != "python" {
				poetry[k] = v
			}
		}
	}

	pyprojectNames := append([]string(nil), deps...)
	for k := range poetry {
		pyprojectNames = append(pyprojectNames, k)
	}
	sort.Strings(pyprojectNames)

	return Success(map[string]any{
		"root":         root,
		"requirements": requirements,
		"pyproject":    pyprojectNames,
		"dependencies": deps,
		"optional":     optional,
		"tool_poetry":  poetry,
	})
}

func readRequirements(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
