// Package logger defines the structured logging sink injected into the
// provider registry and the payment orchestrator. No package in this
// module logs through a process-wide singleton.
package logger

import (
	"sync"
	"time"
)

type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Component scopes l to a named subsystem when the implementation
// supports child loggers, and returns l unchanged otherwise.
func Component(l Logger, name string) Logger {
	if c, ok := l.(interface{ Component(string) Logger }); ok {
		return c.Component(name)
	}
	return l
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// Entry is one captured log record, suitable for a debug panel.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// BufferLogger keeps the most recent entries in memory. It backs debug
// displays and tests; cap defaults to 256 when zero.
type BufferLogger struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

func NewBufferLogger(max int) *BufferLogger {
	if max <= 0 {
		max = 256
	}
	return &BufferLogger{max: max}
}

func (b *BufferLogger) append(level, msg string, fields map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Data:      fields,
	})
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
}

func (b *BufferLogger) Debug(msg string, fields map[string]any) { b.append("debug", msg, fields) }
func (b *BufferLogger) Info(msg string, fields map[string]any)  { b.append("info", msg, fields) }
func (b *BufferLogger) Warn(msg string, fields map[string]any)  { b.append("warn", msg, fields) }
func (b *BufferLogger) Error(msg string, fields map[string]any) { b.append("error", msg, fields) }

// Entries returns a copy of the captured records, oldest first.
func (b *BufferLogger) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
