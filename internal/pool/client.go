// Package pool is the client for the PowerShell session-pool service that
// owns the long-lived authenticated sessions.
package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Run statuses returned by the pool.
const (
	StatusSuccess        = "success"
	StatusAuthRequired   = "auth_required"
	StatusAuthInProgress = "auth_in_progress"
	StatusError          = "error"
)

// DefaultTimeout bounds a single pool request; device-code auth and long
// commands are both slow.
const DefaultTimeout = 120 * time.Second

// RunRequest asks the pool to execute a command on a connection's session.
type RunRequest struct {
	Connection string `json:"connection"`
	Module     string `json:"module"`
	Command    string `json:"command"`
	CallerID   string `json:"caller_id"`
}

// RunResult is the pool's answer. Fields are populated per Status.
type RunResult struct {
	Status          string `json:"status"`
	Output          string `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	DeviceCode      string `json:"device_code,omitempty"`
	AuthenticatedAs string `json:"authenticated_as,omitempty"`
	// Raw keeps the full response body for statuses this client does not know.
	Raw map[string]any `json:"-"`
}

// Client calls the session-pool HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the pool at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Run POSTs req to /run. Transport and decoding failures are folded into a
// RunResult with Status "error" so callers have a single result path.
func (c *Client) Run(ctx context.Context, req RunRequest) *RunResult {
	body, err := json.Marshal(req)
	if err != nil {
		return errorResult(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return errorResult(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq)
}

// Status GETs /status, the pool's session overview.
func (c *Client) Status(ctx context.Context) *RunResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return errorResult(err)
	}
	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) *RunResult {
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &RunResult{Status: StatusError, Error: "Request timed out"}
		}
		return errorResult(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult(fmt.Errorf("read response: %w", err))
	}

	var result RunResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return errorResult(fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err))
	}
	if err := json.Unmarshal(raw, &result.Raw); err != nil {
		result.Raw = nil
	}
	return &result
}

func errorResult(err error) *RunResult {
	return &RunResult{Status: StatusError, Error: err.Error()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
