package activity

import (
	"encoding/json"
	"strings"
	"time"
)

// Record types as written in the "type" field of every line.
const (
	TypeToolCall     = "tool_call"
	TypeSessionEvent = "session_event"
)

// Canonical session lifecycle events. Any other string is accepted as-is;
// nothing validates transitions between them.
const (
	EventSessionStart        = "session_start"
	EventAuthPending         = "auth_pending"
	EventAuthenticated       = "authenticated"
	EventAuthTimeout         = "auth_timeout"
	EventCommandRun          = "command_run"
	EventSessionIdle         = "session_idle"
	EventSessionStuck        = "session_stuck"
	EventSessionKilled       = "session_killed"
	EventSessionDisconnected = "session_disconnected"
)

// IsTerminal reports whether a session whose last event is event is closed.
func IsTerminal(event string) bool {
	return event == EventSessionKilled || event == EventSessionDisconnected
}

// Record is a log line that accepts the write-time timestamp.
type Record interface {
	Stamp(t time.Time)
}

// ToolCallEvent is one tool invocation. Arguments never contain a "command" key.
type ToolCallEvent struct {
	Type           string         `json:"type"`
	MCPName        string         `json:"mcp"`
	ToolName       string         `json:"tool"`
	ConnectionName string         `json:"connection,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Arguments      map[string]any `json:"arguments"`
	CommandPreview *string        `json:"command_preview,omitempty"`
	DurationMs     *int64         `json:"duration_ms,omitempty"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	LoggedAt       Timestamp      `json:"logged_at"`
}

func (e *ToolCallEvent) Stamp(t time.Time) { e.LoggedAt = Timestamp{t} }

// SessionEvent is one lifecycle transition of the session keyed by (Tenant, Module).
type SessionEvent struct {
	Type            string         `json:"type"`
	Event           string         `json:"event"`
	Tenant          string         `json:"tenant"`
	Module          string         `json:"module"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	Details         map[string]any `json:"details"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	LoggedAt        Timestamp      `json:"logged_at"`
}

func (e *SessionEvent) Stamp(t time.Time) { e.LoggedAt = Timestamp{t} }

// Key returns the session identity of e.
func (e *SessionEvent) Key() SessionKey {
	return SessionKey{Tenant: e.Tenant, Module: e.Module}
}

// SessionKey identifies a session. Two concurrent sessions for the same
// tenant and module are indistinguishable.
type SessionKey struct {
	Tenant string
	Module string
}

// naiveISOLayout is the zone-less form older agents wrote.
const naiveISOLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a time.Time that tolerates the timestamp formats found in
// existing log files. A value that cannot be parsed decodes to the zero time
// rather than failing the whole line.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	s = strings.TrimSpace(s)
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	// Zone-less values were written in the writer's local time.
	if parsed, err := time.ParseInLocation(naiveISOLayout, s, time.Local); err == nil {
		t.Time = parsed
		return nil
	}
	t.Time = time.Time{}
	return nil
}
