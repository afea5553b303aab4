// Package logx provides structured logging with component prefixes and
// env-driven debug domains for the orchestrator.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled, timestamped log lines prefixed with a component name.
type Logger struct {
	component string
	logger    *log.Logger
}

// Level is a log severity level.
type Level string

// Log levels.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is a structured log entry retained in the in-memory buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// debugConfig controls which components emit debug lines.
// DEBUG=1 enables all; DEBUG_DOMAINS=session,workspace restricts to a subset.
//
//nolint:gochecknoglobals // env-driven process-wide debug switches
var (
	debugEnabled bool
	debugDomains map[string]bool
	debugMu      sync.RWMutex

	// recent retains the last entries for diagnostics endpoints.
	recent = &ringBuffer{max: 1000}
)

//nolint:gochecknoinits // env var initialization must happen before first log call
func init() {
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugDomains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugDomains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger creates a logger for the given component (e.g. "session", "workspace").
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout clean for CLI output
	}
}

// SetDebug overrides the env-derived debug configuration.
func SetDebug(enabled bool, domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	debugEnabled = enabled
	if len(domains) == 0 {
		debugDomains = nil
		return
	}
	debugDomains = make(map[string]bool, len(domains))
	for _, d := range domains {
		debugDomains[strings.TrimSpace(d)] = true
	}
}

// DebugEnabledFor reports whether debug logging is on for a component.
func DebugEnabledFor(component string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()

	if !debugEnabled {
		return false
	}
	if debugDomains == nil {
		return true
	}
	return debugDomains[component]
}

// RecentEntries returns a copy of the retained log entries, newest last.
func RecentEntries() []Entry {
	return recent.snapshot()
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)

	recent.add(Entry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

// Debug logs a debug message if debug is enabled for this component.
func (l *Logger) Debug(format string, args ...any) {
	if !DebugEnabledFor(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Errorf logs and returns the formatted error.
// Use when both logging and error returning are needed:
//
//	return logx.Errorf("spawn failed: %w", err)
func (l *Logger) Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	l.log(LevelError, "%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error.
func (l *Logger) Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	l.log(LevelError, "%s", wrapped.Error())
	return wrapped
}

// Component returns the component name this logger was created with.
func (l *Logger) Component() string {
	return l.component
}

// ringBuffer retains the last max entries.
type ringBuffer struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

func (b *ringBuffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
}

func (b *ringBuffer) snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
