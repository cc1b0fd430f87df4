package api

import (
	"errors"
	"net/http"

	"github.com/triage-ai/mcp-activity/internal/activity"
)

// maxQueryLimit caps the limit query parameter. limit=0 asks for everything
// and gets the cap.
const maxQueryLimit = 10000

func (d *Dependencies) handleRecordToolCall(w http.ResponseWriter, r *http.Request) {
	var req RecordToolCallReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.MCPName == "" || req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "mcp and tool are required"})
		return
	}

	call := activity.ToolCall{
		MCPName:        req.MCPName,
		ToolName:       req.ToolName,
		Arguments:      req.Arguments,
		ConnectionName: req.ConnectionName,
		ConversationID: req.ConversationID,
		DurationMs:     req.DurationMs,
	}
	if req.Error != "" {
		call.Err = errors.New(req.Error)
	}
	d.Activity.RecordToolCall(call)
	writeJSON(w, http.StatusAccepted, AcceptedResp{Status: "accepted"})
}

func (d *Dependencies) handleRecordSessionEvent(w http.ResponseWriter, r *http.Request) {
	var req RecordSessionEventReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Event == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "event is required"})
		return
	}

	d.Activity.RecordSessionEvent(activity.SessionEventInput{
		Event:           req.Event,
		Tenant:          req.Tenant,
		Module:          req.Module,
		ConversationID:  req.ConversationID,
		Details:         req.Details,
		DurationSeconds: req.DurationSeconds,
	})
	writeJSON(w, http.StatusAccepted, AcceptedResp{Status: "accepted"})
}

func (d *Dependencies) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := activity.SessionFilter{
		Tenant:         q.Get("tenant"),
		Module:         q.Get("module"),
		ConversationID: q.Get("conversation_id"),
		Event:          q.Get("event"),
	}
	events := d.Activity.QuerySessionHistory(r.Context(), filter, queryLimit(q))
	writeJSON(w, http.StatusOK, sessionList(events))
}

func (d *Dependencies) handleSessionStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionList(d.Activity.SessionStates(r.Context())))
}

func (d *Dependencies) handleFindOrphans(w http.ResponseWriter, r *http.Request) {
	var req OrphansReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	writeJSON(w, http.StatusOK, sessionList(d.Activity.FindOrphanSessions(r.Context(), req.ActiveConversationIDs)))
}

func (d *Dependencies) handleListToolCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := activity.ToolCallFilter{
		MCPName:        q.Get("mcp"),
		ToolName:       q.Get("tool"),
		ConnectionName: q.Get("connection"),
		ConversationID: q.Get("conversation_id"),
		FailedOnly:     q.Get("failed") == "true" || q.Get("failed") == "1",
	}
	calls := d.Activity.QueryToolCalls(r.Context(), filter, queryLimit(q))
	if calls == nil {
		calls = []activity.ToolCallEvent{}
	}
	writeJSON(w, http.StatusOK, ToolCallListResp{ToolCalls: calls, Count: len(calls)})
}

func queryLimit(q interface{ Get(string) string }) int {
	limit := queryInt(q, "limit", activity.DefaultLimit)
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	return limit
}

func sessionList(events []activity.SessionEvent) SessionListResp {
	if events == nil {
		events = []activity.SessionEvent{}
	}
	return SessionListResp{Sessions: events, Count: len(events)}
}
