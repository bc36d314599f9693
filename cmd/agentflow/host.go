package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"agentflow/pkg/engine"
	"agentflow/pkg/event"
	"agentflow/pkg/executor"
	"agentflow/pkg/utils"
)

var errNoTerminal = errors.New("stdin is not a terminal")

// previewLimit bounds how much of a payload is echoed per event.
const previewLimit = 400

// host renders a run on the terminal and answers approvals.
type host struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader
	lines  chan string

	// succeeded is set by the summary event, which only a finished run
	// emits. Error events alone do not fail a run: token limit alerts are
	// reported as errors too.
	succeeded bool
}

func newHost(out, errOut io.Writer, in io.Reader) *host {
	return &host{out: out, errOut: errOut, in: in}
}

// consume prints every event until the stream closes.
func (h *host) consume(events <-chan event.Event) error {
	for ev := range events {
		switch ev.Kind {
		case event.KindError:
			fmt.Fprintf(h.errOut, "error: %s\n", ev.Payload)
		case event.KindSummary:
			h.succeeded = true
			fmt.Fprintf(h.out, "\n%s\n", ev.Payload)
		case event.KindCoderRaw, event.KindToolAnalysisPrompt, event.KindToolArgumentPrompt, event.KindTokenUsage:
			// Noisy kinds stay in the audit log.
		default:
			fmt.Fprintf(h.out, "[%s] %s\n", ev.Kind, utils.Truncate(oneLine(ev.Payload), previewLimit, "..."))
		}
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// approve answers approval requests until done closes or ctx ends.
func (h *host) approve(ctx context.Context, done <-chan struct{}, approver *engine.ChannelApprover) error {
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case call := <-approver.Requests():
			ok, err := h.ask(ctx, done, call)
			if err != nil {
				fmt.Fprintf(h.errOut, "approval: %v, denying %s\n", err, call.Tool)
			}
			approver.Respond(ok)
		}
	}
}

func (h *host) ask(ctx context.Context, done <-chan struct{}, call executor.ToolCall) (bool, error) {
	if f, ok := h.in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return false, errNoTerminal
	}
	args, _ := json.Marshal(call.Args)
	fmt.Fprintf(h.out, "Approve %s %s? [y/N] ", call.Tool, utils.Truncate(string(args), previewLimit, "..."))
	h.startReader()
	select {
	case line, ok := <-h.lines:
		if !ok {
			return false, io.EOF
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	case <-done:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// startReader reads stdin lines in the background so a pending prompt
// never blocks cancellation.
func (h *host) startReader() {
	if h.lines != nil {
		return
	}
	h.lines = make(chan string)
	go func() {
		defer close(h.lines)
		sc := bufio.NewScanner(h.in)
		for sc.Scan() {
			h.lines <- sc.Text()
		}
	}()
}

// promptPassword reads a password without echo.
func promptPassword(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// readAllLimited reads at most limit bytes from r.
func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
