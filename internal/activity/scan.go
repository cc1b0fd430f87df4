package activity

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/triage-ai/mcp-activity/internal/metrics"
	"go.uber.org/zap"
)

// scanLines calls fn with every non-blank line of path in file order.
//
// A missing file is an empty log. A read error ends the scan early and is
// logged; whatever fn has already seen stands. ctx is checked between lines.
// Lines have no length limit and the last line may lack its newline.
func (s *Store) scanLines(ctx context.Context, path, name string, fn func(line []byte)) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("activity log open failed",
				zap.String("log", name),
				zap.String("path", path),
				zap.Error(err),
			)
		}
		return
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 64*1024)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			fn(trimmed)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("activity log read failed, returning partial result",
					zap.String("log", name),
					zap.String("path", path),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// scanSessions decodes every parseable session log line in file order.
func (s *Store) scanSessions(ctx context.Context, fn func(e *SessionEvent)) {
	s.scanLines(ctx, s.sessionPath, sessionLogName, func(line []byte) {
		e, ok := decodeSessionEvent(line)
		if !ok {
			metrics.MalformedLines.WithLabelValues(sessionLogName).Inc()
			return
		}
		fn(e)
	})
}

// scanToolCalls decodes every parseable tool-call log line in file order.
func (s *Store) scanToolCalls(ctx context.Context, fn func(e *ToolCallEvent)) {
	s.scanLines(ctx, s.toolPath, toolLogName, func(line []byte) {
		e, ok := decodeToolCallEvent(line)
		if !ok {
			metrics.MalformedLines.WithLabelValues(toolLogName).Inc()
			return
		}
		fn(e)
	})
}

// tail keeps the last n values pushed, in push order. n <= 0 keeps all.
type tail[T any] struct {
	buf  []T
	n    int
	next int
}

func newTail[T any](n int) *tail[T] {
	size := 1024
	if n > 0 {
		size = min(n, size)
	}
	return &tail[T]{buf: make([]T, 0, size), n: n}
}

func (t *tail[T]) push(v T) {
	if t.n <= 0 || len(t.buf) < t.n {
		t.buf = append(t.buf, v)
		return
	}
	t.buf[t.next] = v
	t.next = (t.next + 1) % t.n
}

func (t *tail[T]) values() []T {
	out := make([]T, 0, len(t.buf))
	out = append(out, t.buf[t.next:]...)
	out = append(out, t.buf[:t.next]...)
	return out
}
