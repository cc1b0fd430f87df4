package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/triage-ai/mcp-activity/internal/activity"
	"github.com/triage-ai/mcp-activity/internal/metrics"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

const (
	insertToolCalls = `
		INSERT INTO mcp_tool_calls (
			logged_at, mcp, tool, connection, conversation_id,
			arguments_json, command_preview, duration_ms, success, error
		)
	`
	insertSessionEvents = `
		INSERT INTO mcp_session_events (
			logged_at, event, tenant, module, conversation_id,
			details_json, duration_seconds
		)
	`
)

// insertFunc sends one batch of rows for query.
type insertFunc func(ctx context.Context, query string, rows [][]any) error

// ClickHouseWriter mirrors activity records to ClickHouse asynchronously.
// Write() is non-blocking: records are buffered and batch-inserted in a background goroutine.
// The JSONL files stay the source of truth; this mirror only feeds dashboards.
type ClickHouseWriter struct {
	insert  insertFunc
	close   func() error
	buffer  chan activity.Record
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	return newClickHouseWriter(batchInsert(conn), conn.Close, logger), nil
}

// newClickHouseWriter wires a writer around a custom insert function (for testing).
func newClickHouseWriter(insert insertFunc, closeFn func() error, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		insert:  insert,
		close:   closeFn,
		buffer:  make(chan activity.Record, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

func batchInsert(conn driver.Conn) insertFunc {
	return func(ctx context.Context, query string, rows [][]any) error {
		batch, err := conn.PrepareBatch(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}
		for _, row := range rows {
			if err := batch.Append(row...); err != nil {
				_ = batch.Abort()
				return fmt.Errorf("append row: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
		return nil
	}
}

// Write queues a record for async insertion.
// Non-blocking: drops the record if the buffer is full.
func (w *ClickHouseWriter) Write(record activity.Record) {
	select {
	case w.buffer <- record:
	default:
		metrics.MirrorDropped.WithLabelValues("clickhouse").Inc()
		w.logger.Warn("clickhouse buffer full, dropping event")
	}
}

// Close signals the flush loop to drain remaining records, then closes the connection.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if w.close != nil {
		if err := w.close(); err != nil {
			w.logger.Warn("clickhouse close failed", zap.Error(err))
		}
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]activity.Record, 0, flushBatch)

	for {
		select {
		case record := <-w.buffer:
			batch = append(batch, record)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case record := <-w.buffer:
					batch = append(batch, record)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(records []activity.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var toolRows, sessionRows [][]any
	for _, r := range records {
		switch e := r.(type) {
		case *activity.ToolCallEvent:
			toolRows = append(toolRows, toolCallRow(e))
		case *activity.SessionEvent:
			sessionRows = append(sessionRows, sessionEventRow(e))
		}
	}

	if len(toolRows) > 0 {
		if err := w.insert(ctx, insertToolCalls, toolRows); err != nil {
			w.logger.Error("clickhouse tool call batch failed",
				zap.Int("batch_size", len(toolRows)),
				zap.Error(err),
			)
		}
	}
	if len(sessionRows) > 0 {
		if err := w.insert(ctx, insertSessionEvents, sessionRows); err != nil {
			w.logger.Error("clickhouse session event batch failed",
				zap.Int("batch_size", len(sessionRows)),
				zap.Error(err),
			)
		}
	}
}

func toolCallRow(e *activity.ToolCallEvent) []any {
	var preview string
	if e.CommandPreview != nil {
		preview = *e.CommandPreview
	}
	var durationMs int64 = -1
	if e.DurationMs != nil {
		durationMs = *e.DurationMs
	}
	var success uint8
	if e.Success {
		success = 1
	}
	return []any{
		e.LoggedAt.Time,
		e.MCPName,
		e.ToolName,
		e.ConnectionName,
		e.ConversationID,
		jsonString(e.Arguments),
		preview,
		durationMs,
		success,
		e.Error,
	}
}

func sessionEventRow(e *activity.SessionEvent) []any {
	var duration float64 = -1
	if e.DurationSeconds != nil {
		duration = *e.DurationSeconds
	}
	return []any{
		e.LoggedAt.Time,
		e.Event,
		e.Tenant,
		e.Module,
		e.ConversationID,
		jsonString(e.Details),
		duration,
	}
}

func jsonString(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
