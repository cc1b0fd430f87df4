package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/mcp-activity/internal/activity"
	"github.com/triage-ai/mcp-activity/internal/dispatch"
	"github.com/triage-ai/mcp-activity/internal/metrics"
)

// ActivityStore is the subset of *activity.Store the handlers use.
type ActivityStore interface {
	RecordToolCall(call activity.ToolCall)
	RecordSessionEvent(in activity.SessionEventInput)
	QuerySessionHistory(ctx context.Context, f activity.SessionFilter, limit int) []activity.SessionEvent
	QueryToolCalls(ctx context.Context, f activity.ToolCallFilter, limit int) []activity.ToolCallEvent
	SessionStates(ctx context.Context) []activity.SessionEvent
	FindOrphanSessions(ctx context.Context, active []string) []activity.SessionEvent
}

// ToolDispatcher executes tool calls.
type ToolDispatcher interface {
	Tools() []dispatch.Tool
	Call(ctx context.Context, name string, args map[string]any, cc dispatch.CallContext) (*dispatch.Result, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Activity   ActivityStore
	Dispatcher ToolDispatcher // nil disables the /v1/tools routes
	// APIKeyHash is a bcrypt hash of the bearer token. Empty disables auth.
	APIKeyHash string
	Logger     *zap.Logger
	CacheTTL   time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	auth := deps.authMiddleware

	// Tools
	mux.HandleFunc("GET /v1/tools", auth(deps.handleListTools))
	mux.HandleFunc("POST /v1/tools/{name}/call", auth(deps.handleCallTool))

	// Ingest
	mux.HandleFunc("POST /api/activity/tool-calls", auth(deps.handleRecordToolCall))
	mux.HandleFunc("POST /api/activity/session-events", auth(deps.handleRecordSessionEvent))

	// Queries
	mux.HandleFunc("GET /api/activity/tool-calls", auth(deps.handleListToolCalls))
	mux.HandleFunc("GET /api/activity/sessions/history", auth(deps.handleSessionHistory))
	mux.HandleFunc("GET /api/activity/sessions", auth(deps.handleSessionStates))
	mux.HandleFunc("POST /api/activity/sessions/orphans", auth(deps.handleFindOrphans))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
