// Package logx provides component loggers with domain-gated debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

type ctxKey struct{}

// Logger writes lines of the form "[ts] [component] LEVEL: msg".
type Logger struct {
	component string
}

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Domains map[string]bool // nil enables every domain
	Enabled bool
}

var (
	debugConfig = &DebugConfig{}
	debugMu     sync.RWMutex

	outMu  sync.Mutex
	out    io.Writer = os.Stderr
	tee    *os.File
	stdlog = log.New(os.Stderr, "", 0)
)

func init() { //nolint:gochecknoinits // env driven
	initDebugFromEnv()
}

func initDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugConfig.Enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	m := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			m[d] = true
		}
	}
	return m
}

// NewLogger returns a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the logger's tag.
func (l *Logger) Component() string { return l.component }

// SetDebug toggles debug output and restricts it to domains (empty = all).
func SetDebug(enabled bool, domains ...string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugConfig.Enabled = enabled
	debugConfig.Domains = parseDomains(domains)
}

// IsDebugEnabled reports whether debug logging is on at all.
func IsDebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain reports whether debug output for domain is on.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// SetOutput redirects log output. Intended for tests.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = w
	stdlog.SetOutput(w)
}

// InitializeLogFile tees all log output into <dir>/agentflow.log.
func InitializeLogFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "agentflow.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("open log file %s: %w", path, err)
	}

	outMu.Lock()
	defer outMu.Unlock()
	if tee != nil {
		_ = tee.Close()
	}
	tee = f
	stdlog.SetOutput(io.MultiWriter(out, f))
	return path, nil
}

// CloseLogFile stops the file tee started by InitializeLogFile.
func CloseLogFile() error {
	outMu.Lock()
	defer outMu.Unlock()
	if tee == nil {
		return nil
	}
	err := tee.Close()
	tee = nil
	stdlog.SetOutput(out)
	return err
}

func write(component string, level Level, msg string) {
	ts := time.Now().UTC().Format(timestampFormat)
	outMu.Lock()
	defer outMu.Unlock()
	stdlog.Printf("[%s] [%s] %s: %s", ts, component, level, msg)
}

func (l *Logger) log(level Level, format string, args ...any) {
	write(l.component, level, fmt.Sprintf(format, args...))
}

// Debug logs when debug output is enabled for this logger's component.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabledForDomain(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// WithRunID stores a run id on ctx so domain debug lines can be correlated.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}

// RunID returns the run id stored by WithRunID, or "".
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Debug logs a domain-gated debug line.
//
//	DEBUG=1                          # all domains
//	DEBUG=1 DEBUG_DOMAINS=executor   # only executor
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	tag := domain
	if id := RunID(ctx); id != "" {
		tag = domain + "/" + id
	}
	write(tag, LevelDebug, fmt.Sprintf(format, args...))
}

// DebugState logs a state machine transition.
func DebugState(ctx context.Context, domain, from, to, reason string) {
	Debug(ctx, domain, "state %s -> %s (%s)", from, to, reason)
}

// DebugFlow logs a pipeline milestone.
func DebugFlow(ctx context.Context, domain, stage, action, detail string) {
	Debug(ctx, domain, "%s: %s %s", stage, action, detail)
}

// Errorf logs at ERROR and returns the formatted error. %w is honoured.
func (l *Logger) Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	l.Error("%s", err.Error())
	return err
}

// Wrap annotates err with msg, returning nil for a nil error.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Errorf is the package-level form of Logger.Errorf.
func Errorf(format string, args ...any) error {
	return NewLogger("error").Errorf(format, args...)
}
