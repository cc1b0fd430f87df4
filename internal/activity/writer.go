package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/triage-ai/mcp-activity/internal/metrics"
	"go.uber.org/zap"
)

// EventWriter is the interface for persisting activity records.
// Write() must NEVER block or fail the caller: there is no error to return,
// failures go to the writer's logger and metrics only.
type EventWriter interface {
	Write(record Record)
	Close()
}

const (
	logDirMode  os.FileMode = 0o755
	logFileMode os.FileMode = 0o644
)

// JSONLWriter appends each record as one JSON line to a file.
//
// The file is opened, written and closed on every call and the line goes out
// in a single write(2) on an O_APPEND descriptor. On a local filesystem that
// keeps concurrent appends from separate processes from interleaving inside a
// line; nothing here locks across processes, and readers skip any line that
// still comes out torn.
type JSONLWriter struct {
	path   string
	name   string
	logger *zap.Logger
	now    func() time.Time
}

// NewJSONLWriter creates a writer appending to path. name labels its metrics.
func NewJSONLWriter(path, name string, logger *zap.Logger) *JSONLWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONLWriter{
		path:   path,
		name:   name,
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the file this writer appends to.
func (w *JSONLWriter) Path() string { return w.path }

// Write stamps logged_at on record, overriding any value already set, and
// appends it.
func (w *JSONLWriter) Write(record Record) {
	if record == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.fail("panic", fmt.Errorf("%v", r))
		}
	}()

	record.Stamp(w.now())
	line, err := json.Marshal(record)
	if err != nil {
		w.fail("marshal", err)
		return
	}
	if err := appendLine(w.path, line); err != nil {
		w.fail("append", err)
		return
	}
	metrics.EventsWritten.WithLabelValues(w.name).Inc()
}

// Close is a no-op; no descriptor outlives a Write.
func (w *JSONLWriter) Close() {}

func (w *JSONLWriter) fail(stage string, err error) {
	metrics.WriteFailures.WithLabelValues(w.name, stage).Inc()
	w.logger.Warn("activity log write failed",
		zap.String("log", w.name),
		zap.String("path", w.path),
		zap.String("stage", stage),
		zap.Error(err),
	)
}

func appendLine(path string, line []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, logDirMode); err != nil {
			return fmt.Errorf("appendLine: create log directory: %w", err)
		}
	}

	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFileMode)
	if err != nil {
		return fmt.Errorf("appendLine: open: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("appendLine: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("appendLine: close: %w", err)
	}
	return nil
}

// MultiWriter fans a record out to several writers in order. The first
// writer stamps logged_at; later writers see the stamped record.
type MultiWriter struct {
	writers []EventWriter
}

// NewMultiWriter combines writers, skipping nil entries.
func NewMultiWriter(writers ...EventWriter) *MultiWriter {
	m := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			m.writers = append(m.writers, w)
		}
	}
	return m
}

func (m *MultiWriter) Write(record Record) {
	for _, w := range m.writers {
		w.Write(record)
	}
}

func (m *MultiWriter) Close() {
	for _, w := range m.writers {
		w.Close()
	}
}

// LogWriter echoes records to a zap logger. Useful as a development mirror.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs records to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(record Record) {
	switch e := record.(type) {
	case *ToolCallEvent:
		fields := []zap.Field{
			zap.String("mcp", e.MCPName),
			zap.String("tool", e.ToolName),
			zap.String("connection", e.ConnectionName),
			zap.String("conversation_id", e.ConversationID),
			zap.Bool("success", e.Success),
		}
		if e.DurationMs != nil {
			fields = append(fields, zap.Int64("duration_ms", *e.DurationMs))
		}
		if e.Error != "" {
			fields = append(fields, zap.String("error", e.Error))
		}
		w.logger.Info("tool_call", fields...)
	case *SessionEvent:
		w.logger.Info("session_event",
			zap.String("event", e.Event),
			zap.String("tenant", e.Tenant),
			zap.String("module", e.Module),
			zap.String("conversation_id", e.ConversationID),
		)
	}
}

func (w *LogWriter) Close() {}
