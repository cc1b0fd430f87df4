package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/mcp-activity/internal/dispatch"
)

func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	if d.Dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Tool dispatch not configured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": d.Dispatcher.Tools()})
}

func (d *Dependencies) handleCallTool(w http.ResponseWriter, r *http.Request) {
	if d.Dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Tool dispatch not configured"})
		return
	}
	name := r.PathValue("name")

	var req ToolCallReq
	// An empty body is a call with no arguments.
	if err := readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	requestID := requestIDFromContext(r.Context())
	res, err := d.Dispatcher.Call(r.Context(), name, req.Arguments, dispatch.CallContext{
		ConversationID: r.Header.Get(headerConversationID),
	})
	if err != nil {
		d.Logger.Error("tool call failed",
			zap.String("request_id", requestID),
			zap.String("tool", name),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, ErrorResp{Detail: "Tool call failed"})
		return
	}
	writeJSON(w, http.StatusOK, ToolCallResp{Tool: name, Text: res.Text, RequestID: requestID})
}
