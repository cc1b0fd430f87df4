package api

import "github.com/triage-ai/mcp-activity/internal/activity"

// --- POST /v1/tools/{name}/call ---

// ToolCallReq is the JSON body for a tool invocation.
type ToolCallReq struct {
	Arguments map[string]any `json:"arguments"`
}

// ToolCallResp carries the tool's text output.
type ToolCallResp struct {
	Tool      string `json:"tool"`
	Text      string `json:"text"`
	RequestID string `json:"request_id"`
}

// --- Ingest ---

// RecordToolCallReq is the JSON body for POST /api/activity/tool-calls.
type RecordToolCallReq struct {
	MCPName        string         `json:"mcp"`
	ToolName       string         `json:"tool"`
	Arguments      map[string]any `json:"arguments"`
	ConnectionName string         `json:"connection,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	DurationMs     *int64         `json:"duration_ms,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// RecordSessionEventReq is the JSON body for POST /api/activity/session-events.
type RecordSessionEventReq struct {
	Event           string         `json:"event"`
	Tenant          string         `json:"tenant"`
	Module          string         `json:"module"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
}

// AcceptedResp acknowledges a fire-and-forget write.
type AcceptedResp struct {
	Status string `json:"status"`
}

// --- Queries ---

// SessionListResp wraps session events.
type SessionListResp struct {
	Sessions []activity.SessionEvent `json:"sessions"`
	Count    int                     `json:"count"`
}

// ToolCallListResp wraps tool-call events.
type ToolCallListResp struct {
	ToolCalls []activity.ToolCallEvent `json:"tool_calls"`
	Count     int                      `json:"count"`
}

// OrphansReq is the JSON body for POST /api/activity/sessions/orphans.
type OrphansReq struct {
	ActiveConversationIDs []string `json:"active_conversation_ids"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
