// Package logging provides levelled console logging for the registry and
// the daemon that embeds it.
//
// Lines have the form
//
//	LEVEL TIMESTAMP [component] message key=value ...
//
// The ledger is the durable audit record; log output is for operators
// watching a node in real time.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel accepts level names in any case.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelPriority[level]; !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Logger writes structured lines. Loggers derived with WithComponent share
// the parent's output and lock.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// New creates a new Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	l.minLevel = LevelError
	return l
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := *l
	c.component = component
	return &c
}

// WithTraceID returns a new logger that tags lines with a trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	c := *l
	c.traceID = traceID
	return &c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.traceID != "" {
		fieldStr += " trace_id=" + l.traceID
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}
	l.output.Write([]byte(line))
}

// --- Registry lifecycle ---

// ResourceAdded logs a newly registered resource.
func (l *Logger) ResourceAdded(id, name, typ, actor string) {
	l.Info("resource_added", map[string]interface{}{
		"id":    id,
		"name":  name,
		"type":  typ,
		"actor": actor,
	})
}

// ResourceRemoved logs a deregistered resource.
func (l *Logger) ResourceRemoved(id, name, actor string, force bool) {
	l.Info("resource_removed", map[string]interface{}{
		"id":    id,
		"name":  name,
		"actor": actor,
		"force": force,
	})
}

// StatusChanged logs a status transition.
func (l *Logger) StatusChanged(id, from, to, actor string) {
	l.Info("status_changed", map[string]interface{}{
		"id":    id,
		"from":  from,
		"to":    to,
		"actor": actor,
	})
}

// HealthCheck logs a single probe result.
func (l *Logger) HealthCheck(id string, healthy bool, latency time.Duration, reason string) {
	fields := map[string]interface{}{
		"id":      id,
		"healthy": healthy,
		"latency": latency.String(),
	}
	if reason != "" {
		fields["reason"] = reason
	}
	l.Debug("health_check", fields)
}

// DrainStarted logs the start of a drain wait.
func (l *Logger) DrainStarted(id string, timeout time.Duration) {
	l.Info("drain_started", map[string]interface{}{
		"id":      id,
		"timeout": timeout.String(),
	})
}

// DrainTimeout logs a drain that did not complete.
func (l *Logger) DrainTimeout(id string, timeout time.Duration) {
	l.Warn("drain_timeout", map[string]interface{}{
		"id":      id,
		"timeout": timeout.String(),
	})
}

// RollbackFailed logs a compensation write that failed after a ledger error,
// leaving persisted state ahead of the ledger.
func (l *Logger) RollbackFailed(id, op string, err error) {
	l.Error("rollback_failed", map[string]interface{}{
		"id":    id,
		"op":    op,
		"error": err.Error(),
	})
}
