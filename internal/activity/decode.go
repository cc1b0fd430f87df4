package activity

import "encoding/json"

// Log lines come from several writers and versions. A line is dropped only
// when it is not a JSON object; a field of the wrong type decodes to its zero
// value and the rest of the record is kept.

func decodeSessionEvent(line []byte) (*SessionEvent, bool) {
	fields, ok := decodeObject(line)
	if !ok {
		return nil, false
	}
	var e SessionEvent
	field(fields, "type", &e.Type)
	field(fields, "event", &e.Event)
	field(fields, "tenant", &e.Tenant)
	field(fields, "module", &e.Module)
	field(fields, "conversation_id", &e.ConversationID)
	field(fields, "details", &e.Details)
	field(fields, "duration_seconds", &e.DurationSeconds)
	field(fields, "logged_at", &e.LoggedAt)
	return &e, true
}

func decodeToolCallEvent(line []byte) (*ToolCallEvent, bool) {
	fields, ok := decodeObject(line)
	if !ok {
		return nil, false
	}
	var e ToolCallEvent
	field(fields, "type", &e.Type)
	field(fields, "mcp", &e.MCPName)
	field(fields, "tool", &e.ToolName)
	field(fields, "connection", &e.ConnectionName)
	field(fields, "conversation_id", &e.ConversationID)
	field(fields, "arguments", &e.Arguments)
	field(fields, "command_preview", &e.CommandPreview)
	field(fields, "duration_ms", &e.DurationMs)
	field(fields, "success", &e.Success)
	field(fields, "error", &e.Error)
	field(fields, "logged_at", &e.LoggedAt)
	return &e, true
}

// decodeObject splits line into its top-level members. It fails for invalid
// JSON and for any value that is not an object, including null.
func decodeObject(line []byte) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// field decodes fields[key] into dst, leaving dst untouched when the key is
// absent or holds a value of another type.
func field[T any](fields map[string]json.RawMessage, key string, dst *T) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = v
	}
}
