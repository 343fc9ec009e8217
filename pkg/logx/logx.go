// Package logx provides component-scoped logging with env-controlled, domain-filtered debug output.
//
// Lines look like
//
//	[2026-03-01T12:00:00.000Z] [deploy/site-42] INFO: 🚀 deploying 9 steps to wp.example.com
//
// and go to stderr so that stdout stays free for command output.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel accepts debug, info, warn or error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

const timestampFormat = "2006-01-02T15:04:05.000Z"

// settings is replaced as a whole; readers never lock.
type settings struct {
	min     Level
	debug   bool
	domains map[string]bool // nil means every domain
}

type componentKey struct{}

//nolint:gochecknoglobals // Process-wide logging configuration
var (
	current atomic.Pointer[settings]

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

func init() { //nolint:gochecknoinits // Reads DEBUG, DEBUG_DOMAINS and SITEBUILDER_LOG_LEVEL once
	s := &settings{min: LevelInfo}
	if lvl, err := ParseLevel(os.Getenv("SITEBUILDER_LOG_LEVEL")); err == nil {
		s.min = lvl
	}
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		s.debug = true
	}
	// DEBUG_DOMAINS=genclient,deploy
	if v := os.Getenv("DEBUG_DOMAINS"); v != "" {
		s.domains = parseDomains(strings.Split(v, ","))
	}
	current.Store(s)
}

func parseDomains(domains []string) map[string]bool {
	var parsed map[string]bool
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			if parsed == nil {
				parsed = map[string]bool{}
			}
			parsed[d] = true
		}
	}
	return parsed
}

// SetOutput redirects all loggers to w and returns a func restoring the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	outMu.Lock()
	previous := out
	out = w
	outMu.Unlock()

	return func() {
		outMu.Lock()
		out = previous
		outMu.Unlock()
	}
}

// SetDebug toggles debug logging and optionally limits it to the given domains.
func SetDebug(enabled bool, domains ...string) {
	s := *current.Load()
	s.debug = enabled
	s.domains = parseDomains(domains)
	current.Store(&s)
}

// SetLevel drops Info/Warn/Error lines below min. Debug lines follow SetDebug only.
func SetLevel(min Level) {
	s := *current.Load()
	s.min = min
	current.Store(&s)
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	return current.Load().debug
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	s := current.Load()
	return s.debug && (s.domains == nil || s.domains[domain])
}

func emit(component string, level Level, msg string) {
	if level != LevelDebug && level < current.Load().min {
		return
	}
	line := fmt.Sprintf("[%s] [%s] %s: %s\n", time.Now().UTC().Format(timestampFormat), component, level, msg)

	outMu.Lock()
	defer outMu.Unlock()
	_, _ = io.WriteString(out, line)
}

// Logger writes lines tagged with its component.
type Logger struct {
	component string
}

func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debug(format string, args ...any) {
	if IsDebugEnabled() {
		emit(l.component, LevelDebug, fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Info(format string, args ...any) {
	emit(l.component, LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	emit(l.component, LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	emit(l.component, LevelError, fmt.Sprintf(format, args...))
}

func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for a sub-component, e.g. "deploy" -> "deploy/site-42".
func (l *Logger) With(suffix string) *Logger {
	return &Logger{component: l.component + "/" + suffix}
}

// WithComponent stores a component id in ctx for Debug and DebugFlow.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey{}, component)
}

func componentFrom(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(componentKey{}).(string); ok && id != "" {
			return id
		}
	}
	return "unknown"
}

// Debug logs under the component stored in ctx when debug is on for domain.
//
//	DEBUG=1                              # all domains
//	DEBUG=1 DEBUG_DOMAINS=genclient      # one domain
//	DEBUG=1 DEBUG_DOMAINS=deploy,remote  # several
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	emit(componentFrom(ctx), LevelDebug, "["+domain+"] "+fmt.Sprintf(format, args...))
}

// DebugFlow logs a pipeline step transition, e.g. "Flow planning: started - Joe's Pizza".
func DebugFlow(ctx context.Context, domain, step, status string, detail ...string) {
	if len(detail) > 0 {
		Debug(ctx, domain, "Flow %s: %s - %s", step, status, detail[0])
		return
	}
	Debug(ctx, domain, "Flow %s: %s", step, status)
}
