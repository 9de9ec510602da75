package engine

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level of a run log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LogEntry is one timestamped event in a run's ordered record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RunID     string         `json:"runId"`
}

// RunLog is the append-only event record of one run. Every entry carries the
// run id. Entries are mirrored to the process-wide zap logger as they are
// appended; the buffer itself backs the result's Logs and JSONL export.
//
// A run is single-goroutine by design, but the mutex keeps the log safe if
// the batch driver ever goes concurrent.
type RunLog struct {
	mu      sync.Mutex
	runID   string
	entries []LogEntry
	zlog    *zap.Logger
	now     func() time.Time
}

func NewRunLog(runID string, zlog *zap.Logger) *RunLog {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &RunLog{
		runID: runID,
		zlog:  zlog.With(zap.String("run_id", runID)),
		now:   time.Now,
	}
}

func (l *RunLog) RunID() string { return l.runID }

func (l *RunLog) Debug(msg string, ctx map[string]any) { l.append(LevelDebug, msg, ctx) }
func (l *RunLog) Info(msg string, ctx map[string]any)  { l.append(LevelInfo, msg, ctx) }
func (l *RunLog) Warn(msg string, ctx map[string]any)  { l.append(LevelWarn, msg, ctx) }
func (l *RunLog) Error(msg string, ctx map[string]any) { l.append(LevelError, msg, ctx) }

func (l *RunLog) append(level Level, msg string, ctx map[string]any) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{
		Timestamp: l.now(),
		Level:     level,
		Message:   msg,
		Context:   ctx,
		RunID:     l.runID,
	})
	l.mu.Unlock()

	fields := make([]zap.Field, 0, 1)
	if ctx != nil {
		fields = append(fields, zap.Any("context", ctx))
	}
	switch level {
	case LevelDebug:
		l.zlog.Debug(msg, fields...)
	case LevelWarn:
		l.zlog.Warn(msg, fields...)
	case LevelError:
		l.zlog.Error(msg, fields...)
	default:
		l.zlog.Info(msg, fields...)
	}
}

// Entries returns a snapshot copy; the result object must not alias the
// live buffer.
func (l *RunLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// JSONL serializes the current entries as one JSON object per line.
func (l *RunLog) JSONL() string {
	entries := l.Entries()
	var sb strings.Builder
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}
