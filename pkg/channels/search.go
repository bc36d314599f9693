package channels

import (
	"context"
	"regexp"
	"strings"

	"agentflow/pkg/tools"
	"agentflow/pkg/utils"
	"agentflow/pkg/workspace"
)

const (
	// MaxHits caps the hits of one search.
	MaxHits = 8
	// PreviewLimit bounds the preview of each hit.
	PreviewLimit = 1200
)

// Match kinds of a Hit.
const (
	MatchPath   = "path"
	MatchSymbol = "symbol"
	MatchText   = "text"
)

// Hit is one located element.
type Hit struct {
	Path    string `json:"path"`
	Element string `json:"element"`
	Match   string `json:"match"`
	Symbol  string `json:"symbol,omitempty"`
	Text    string `json:"text,omitempty"`
	Preview string `json:"preview,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Search locates elements deterministically: file names and paths first,
// then Python symbols, then a text search of the workspace. Hits are unique
// per path and capped at MaxHits.
func (p *Pipelines) Search(ctx context.Context, elements []Element, ix *workspace.Index) []Hit {
	if ix == nil {
		ix = workspace.Empty()
	}
	seen := map[string]bool{}
	var hits []Hit
	add := func(h Hit) bool {
		h.Path = workspace.NormalizePath(h.Path)
		if h.Path == "" || seen[h.Path] || len(hits) >= MaxHits {
			return false
		}
		seen[h.Path] = true
		hits = append(hits, h)
		return true
	}

	for _, el := range elements {
		if len(hits) >= MaxHits || ctx.Err() != nil {
			break
		}
		term := strings.ToLower(strings.TrimSpace(el.Search))
		if term == "" {
			continue
		}
		found := false
		for _, f := range ix.Files {
			// the path covers the base name
			if strings.Contains(strings.ToLower(f), term) {
				found = true
				add(Hit{Path: f, Element: el.Search, Match: MatchPath})
			}
		}
		if found {
			continue
		}
		for _, s := range ix.PySymbols {
			if name, ok := matchSymbol(s, term); ok {
				found = true
				add(Hit{Path: s.Path, Element: el.Search, Match: MatchSymbol, Symbol: name})
			}
		}
		if found {
			continue
		}
		p.searchText(ctx, el, add)
	}

	for i := range hits {
		res := p.registry.Dispatch(ctx, tools.ReadFile, map[string]any{"path": hits[i].Path})
		if res.OK() {
			hits[i].Preview = utils.Truncate(res.String("content"), PreviewLimit, utils.TruncateSuffix)
		}
	}
	return hits
}

func matchSymbol(s workspace.Symbols, term string) (string, bool) {
	for _, group := range [][]string{s.Classes, s.Functions, s.Globals} {
		for _, name := range group {
			if strings.Contains(strings.ToLower(name), term) {
				return name, true
			}
		}
	}
	return "", false
}

func (p *Pipelines) searchText(ctx context.Context, el Element, add func(Hit) bool) {
	res := p.registry.Dispatch(ctx, tools.SearchText, map[string]any{
		"path":        ".",
		"pattern":     regexp.QuoteMeta(el.Search),
		"max_results": MaxHits,
	})
	if !res.OK() {
		p.logger.Debug("search_text for %q failed: %s", el.Search, res.Error())
		return
	}
	var results []map[string]any
	switch v := res["results"].(type) {
	case []map[string]any:
		results = v
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				results = append(results, m)
			}
		}
	}
	for _, r := range results {
		add(Hit{
			Path:    utils.StringArg(r, "file"),
			Element: el.Search,
			Match:   MatchText,
			Line:    utils.IntArg(r, "line", 0),
			Text:    utils.StringArg(r, "text"),
		})
	}
}
