package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/mcp-activity/internal/activity"
	"github.com/triage-ai/mcp-activity/internal/dispatch"
)

type stubDispatcher struct {
	lastName string
	lastArgs map[string]any
	lastCC   dispatch.CallContext
	err      error
}

func (s *stubDispatcher) Tools() []dispatch.Tool {
	return []dispatch.Tool{{Name: dispatch.ToolRun}}
}

func (s *stubDispatcher) Call(_ context.Context, name string, args map[string]any, cc dispatch.CallContext) (*dispatch.Result, error) {
	s.lastName, s.lastArgs, s.lastCC = name, args, cc
	if s.err != nil {
		return nil, s.err
	}
	return &dispatch.Result{Text: "ok"}, nil
}

func newTestRouter(t *testing.T, hash string) (http.Handler, *activity.Store, *stubDispatcher) {
	t.Helper()
	store := activity.New(activity.Config{Dir: t.TempDir(), Logger: zap.NewNop()})
	t.Cleanup(store.Close)
	disp := &stubDispatcher{}
	h := NewRouter(&Dependencies{
		Activity:   store,
		Dispatcher: disp,
		APIKeyHash: hash,
		Logger:     zap.NewNop(),
	})
	return h, store, disp
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	rec := do(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Error("expected a generated request id")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	rec := do(t, h, http.MethodPost, "/v1/tools/run/call", map[string]any{}, map[string]string{headerRequestID: "req-42"})
	if got := rec.Header().Get(headerRequestID); got != "req-42" {
		t.Fatalf("expected incoming request id, got %q", got)
	}
	if resp := decode[ToolCallResp](t, rec); resp.RequestID != "req-42" {
		t.Errorf("expected request id in body, got %q", resp.RequestID)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	rec := do(t, h, http.MethodOptions, "/api/activity/sessions", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestCallTool(t *testing.T) {
	h, _, disp := newTestRouter(t, "")
	body := ToolCallReq{Arguments: map[string]any{"connection": "Acme", "module": "exo", "command": "Get-Mailbox"}}
	rec := do(t, h, http.MethodPost, "/v1/tools/run/call", body, map[string]string{headerConversationID: "conv-7"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decode[ToolCallResp](t, rec); resp.Text != "ok" || resp.Tool != "run" {
		t.Errorf("unexpected response %+v", resp)
	}
	if disp.lastName != "run" || disp.lastCC.ConversationID != "conv-7" || disp.lastArgs["command"] != "Get-Mailbox" {
		t.Errorf("unexpected dispatch %q %+v %+v", disp.lastName, disp.lastArgs, disp.lastCC)
	}
}

func TestCallTool_EmptyBodyAndFailure(t *testing.T) {
	h, _, disp := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/run/call", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected empty body to be accepted, got %d", rec.Code)
	}

	disp.err = errors.New("registry down")
	rec = do(t, h, http.MethodPost, "/v1/tools/run/call", map[string]any{}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestCallTool_InvalidJSON(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/run/call", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIngestAndQuerySessions(t *testing.T) {
	h, _, _ := newTestRouter(t, "")

	for _, ev := range []RecordSessionEventReq{
		{Event: activity.EventSessionStart, Tenant: "a.com", Module: "exo", ConversationID: "c1"},
		{Event: activity.EventAuthenticated, Tenant: "a.com", Module: "exo", ConversationID: "c1"},
		{Event: activity.EventSessionStart, Tenant: "b.com", Module: "pnp", ConversationID: "c2"},
		{Event: activity.EventSessionKilled, Tenant: "c.com", Module: "exo", ConversationID: "c3"},
	} {
		if rec := do(t, h, http.MethodPost, "/api/activity/session-events", ev, nil); rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/activity/sessions/history?tenant=a.com&limit=1", nil, nil)
	hist := decode[SessionListResp](t, rec)
	if hist.Count != 1 || hist.Sessions[0].Event != activity.EventAuthenticated {
		t.Fatalf("unexpected history %+v", hist)
	}

	states := decode[SessionListResp](t, do(t, h, http.MethodGet, "/api/activity/sessions", nil, nil))
	if states.Count != 3 {
		t.Fatalf("expected 3 session keys, got %+v", states)
	}

	orphans := decode[SessionListResp](t, do(t, h, http.MethodPost, "/api/activity/sessions/orphans",
		OrphansReq{ActiveConversationIDs: []string{"c1"}}, nil))
	if orphans.Count != 1 || orphans.Sessions[0].ConversationID != "c2" {
		t.Fatalf("unexpected orphans %+v", orphans)
	}
}

func TestQueryLimit(t *testing.T) {
	cases := map[string]int{
		"":      activity.DefaultLimit,
		"7":     7,
		"abc":   activity.DefaultLimit,
		"0":     maxQueryLimit,
		"-3":    maxQueryLimit,
		"50000": maxQueryLimit,
	}
	for raw, want := range cases {
		q := url.Values{}
		if raw != "" {
			q.Set("limit", raw)
		}
		if got := queryLimit(q); got != want {
			t.Errorf("limit=%q: expected %d, got %d", raw, want, got)
		}
	}
}

func TestIngestSessionEventRequiresEvent(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	rec := do(t, h, http.MethodPost, "/api/activity/session-events", RecordSessionEventReq{Tenant: "a.com"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIngestAndQueryToolCalls(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	ms := int64(12)
	for _, c := range []RecordToolCallReq{
		{MCPName: "mm", ToolName: "run", Arguments: map[string]any{"command": "Get-Mailbox"}, DurationMs: &ms},
		{MCPName: "mm", ToolName: "run", Error: "boom"},
		{MCPName: "other", ToolName: "list"},
	} {
		if rec := do(t, h, http.MethodPost, "/api/activity/tool-calls", c, nil); rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	}

	all := decode[ToolCallListResp](t, do(t, h, http.MethodGet, "/api/activity/tool-calls?mcp=mm", nil, nil))
	if all.Count != 2 {
		t.Fatalf("expected 2 mm calls, got %+v", all)
	}
	if all.ToolCalls[0].CommandPreview == nil || *all.ToolCalls[0].CommandPreview != "Get-Mailbox" {
		t.Errorf("expected redacted command preview, got %+v", all.ToolCalls[0])
	}
	if _, ok := all.ToolCalls[0].Arguments["command"]; ok {
		t.Error("full command must not be persisted")
	}

	failed := decode[ToolCallListResp](t, do(t, h, http.MethodGet, "/api/activity/tool-calls?failed=true", nil, nil))
	if failed.Count != 1 || failed.ToolCalls[0].Error != "boom" {
		t.Fatalf("unexpected failed calls %+v", failed)
	}
}

func TestIngestToolCallValidation(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	rec := do(t, h, http.MethodPost, "/api/activity/tool-calls", RecordToolCallReq{MCPName: "mm"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEmptyQueriesReturnArrays(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	rec := do(t, h, http.MethodGet, "/api/activity/tool-calls", nil, nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"tool_calls":[]`)) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/activity/sessions", nil, nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"sessions":[]`)) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h, _, _ := newTestRouter(t, string(hash))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret-token", http.StatusOK},
		{"valid cached", "Bearer secret-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := do(t, h, http.MethodGet, "/api/activity/sessions", nil, headers)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	if rec := do(t, h, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("healthz must not require auth, got %d", rec.Code)
	}
}

func TestDispatcherNotConfigured(t *testing.T) {
	store := activity.New(activity.Config{Dir: t.TempDir()})
	t.Cleanup(store.Close)
	h := NewRouter(&Dependencies{Activity: store})

	if rec := do(t, h, http.MethodGet, "/v1/tools", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestListTools(t *testing.T) {
	h, _, _ := newTestRouter(t, "")
	rec := do(t, h, http.MethodGet, "/v1/tools", nil, nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"name":"run"`)) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
