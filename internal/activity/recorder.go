package activity

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/triage-ai/mcp-activity/internal/metrics"
)

// commandPreviewLimit is the number of characters of a remote command kept
// in the tool-call log. The full command is never persisted.
const commandPreviewLimit = 100

const commandArgument = "command"

// ToolCall describes a finished tool invocation.
type ToolCall struct {
	MCPName        string
	ToolName       string
	Arguments      map[string]any
	ConnectionName string
	ConversationID string
	// Result is a summary of the tool output. It is not persisted.
	Result     string
	Err        error
	DurationMs *int64
}

// Millis converts d to the duration_ms representation.
func Millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// NewToolCallEvent builds the redacted record for call.
func NewToolCallEvent(call ToolCall) *ToolCallEvent {
	args := make(map[string]any, len(call.Arguments))
	var preview *string
	for k, v := range call.Arguments {
		if k == commandArgument {
			p := commandPreview(v)
			preview = &p
			continue
		}
		args[k] = v
	}

	e := &ToolCallEvent{
		Type:           TypeToolCall,
		MCPName:        call.MCPName,
		ToolName:       call.ToolName,
		ConnectionName: call.ConnectionName,
		ConversationID: call.ConversationID,
		Arguments:      args,
		CommandPreview: preview,
		DurationMs:     call.DurationMs,
		Success:        call.Err == nil,
	}
	if call.Err != nil {
		e.Error = call.Err.Error()
	}
	return e
}

// commandPreview returns the first commandPreviewLimit characters of v.
// Non-string values are previewed through their JSON encoding.
func commandPreview(v any) string {
	s, ok := v.(string)
	if !ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		s = string(raw)
	}
	return TruncateRunes(s, commandPreviewLimit)
}

// TruncateRunes returns the first n characters of s.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// RecordToolCall appends call to the tool-call log. It never fails.
func (s *Store) RecordToolCall(call ToolCall) {
	e := NewToolCallEvent(call)
	if e.DurationMs != nil {
		metrics.ToolCallDuration.WithLabelValues(e.MCPName, e.ToolName).
			Observe(float64(*e.DurationMs) / 1000)
	}
	if !e.Success {
		metrics.ToolCallErrors.WithLabelValues(e.MCPName, e.ToolName).Inc()
	}
	s.tools.Write(e)
}

// SessionEventInput describes one session lifecycle transition.
type SessionEventInput struct {
	Event           string
	Tenant          string
	Module          string
	ConversationID  string
	Details         map[string]any
	DurationSeconds *float64
}

// NewSessionEvent builds the record for in. Details default to an empty object.
func NewSessionEvent(in SessionEventInput) *SessionEvent {
	details := make(map[string]any, len(in.Details))
	for k, v := range in.Details {
		details[k] = v
	}
	return &SessionEvent{
		Type:            TypeSessionEvent,
		Event:           in.Event,
		Tenant:          in.Tenant,
		Module:          in.Module,
		ConversationID:  in.ConversationID,
		Details:         details,
		DurationSeconds: in.DurationSeconds,
	}
}

// RecordSessionEvent appends in to the session log. It never fails.
func (s *Store) RecordSessionEvent(in SessionEventInput) {
	s.sessions.Write(NewSessionEvent(in))
}
