package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_RunSendsRequest(t *testing.T) {
	var got RunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/run" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"success","output":"ok","authenticated_as":"a@b.com","session_id":"s1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	res := c.Run(context.Background(), RunRequest{Connection: "ForIT-GA", Module: "exo", Command: "Get-Mailbox", CallerID: "mm-mcp"})

	if res.Status != StatusSuccess || res.Output != "ok" || res.AuthenticatedAs != "a@b.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Raw["session_id"] != "s1" {
		t.Errorf("expected raw body to keep unknown fields, got %v", res.Raw)
	}
	if got.Connection != "ForIT-GA" || got.CallerID != "mm-mcp" {
		t.Errorf("unexpected request body: %+v", got)
	}
}

func TestClient_AuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"auth_required","device_code":"ABCD-1234"}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL, time.Second).Run(context.Background(), RunRequest{})
	if res.Status != StatusAuthRequired || res.DeviceCode != "ABCD-1234" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClient_TimeoutBecomesErrorResult(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	res := NewClient(srv.URL, 50*time.Millisecond).Run(context.Background(), RunRequest{})
	if res.Status != StatusError || res.Error != "Request timed out" {
		t.Fatalf("expected timeout error result, got %+v", res)
	}
}

func TestClient_UnreachablePool(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewClient(url, time.Second).Run(context.Background(), RunRequest{})
	if res.Status != StatusError || res.Error == "" {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestClient_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	res := NewClient(srv.URL, time.Second).Run(context.Background(), RunRequest{})
	if res.Status != StatusError {
		t.Fatalf("expected error status, got %+v", res)
	}
}
