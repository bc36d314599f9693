// Package router classifies a request into the channel that handles it.
package router

import (
	"context"
	"encoding/json"
	"strings"

	"agentflow/pkg/config"
	"agentflow/pkg/contract"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/stage"
	"agentflow/pkg/templates"
	"agentflow/pkg/tools"
	"agentflow/pkg/utils"
)

// Channel names a pipeline.
type Channel string

// Channels. Project is the fallback.
const (
	Project Channel = "project"
	Debug   Channel = "debug"
	Explain Channel = "explain"
	Tool    Channel = "tool"
)

// ParseChannel maps s onto a known channel.
func ParseChannel(s string) (Channel, bool) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case Project, Debug, Explain, Tool:
		return c, true
	}
	return Project, false
}

// Decision is the router's answer.
type Decision struct {
	Channel Channel `json:"channel"`
	Reason  string  `json:"reason"`
}

type toolEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type routePayload struct {
	Request string      `json:"request"`
	Tools   []toolEntry `json:"tools"`
}

// Router calls the router stage once, without retries.
type Router struct {
	inv    contract.Invoker
	sink   event.Sink
	logger *logx.Logger
}

// New creates a router.
func New(inv contract.Invoker, sink event.Sink) *Router {
	if sink == nil {
		sink = event.Discard
	}
	return &Router{inv: inv, sink: sink, logger: logx.NewLogger("router")}
}

// Route classifies request. Every failure resolves to Project.
func (r *Router) Route(ctx context.Context, request string, catalogue []tools.Descriptor) Decision {
	d := r.route(ctx, request, catalogue)
	r.sink.Emit(event.KindChannel, d)
	return d
}

func (r *Router) route(ctx context.Context, request string, catalogue []tools.Descriptor) Decision {
	p := routePayload{Request: request, Tools: make([]toolEntry, 0, len(catalogue))}
	for _, d := range catalogue {
		if d.Name == tools.PythonExec {
			continue
		}
		p.Tools = append(p.Tools, toolEntry{Name: d.Name, Description: d.Description})
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Decision{Channel: Project, Reason: "fallback: " + err.Error()}
	}

	raw, err := r.inv.Invoke(ctx, config.StageRouter, stage.Messages(templates.Must(templates.Router, nil), string(body)))
	if err != nil {
		r.logger.Warn("router failed, defaulting to project: %v", err)
		return Decision{Channel: Project, Reason: "fallback: router unavailable"}
	}
	obj := contract.ExtractJSON(raw)
	if obj == nil {
		r.logger.Debug("router output is not JSON: %q", utils.Truncate(raw, 200, "..."))
		return Decision{Channel: Project, Reason: "fallback: unparseable router output"}
	}
	ch, ok := ParseChannel(utils.StringArg(obj, "channel"))
	if !ok {
		return Decision{Channel: Project, Reason: "fallback: unknown channel " + utils.StringArg(obj, "channel")}
	}
	return Decision{Channel: ch, Reason: utils.StringArg(obj, "reason")}
}
