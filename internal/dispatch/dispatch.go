// Package dispatch implements the mm tool surface: the run tool that executes
// PowerShell commands on pooled sessions for registered connections.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/triage-ai/mcp-activity/internal/activity"
	"github.com/triage-ai/mcp-activity/internal/pool"
	"github.com/triage-ai/mcp-activity/internal/registry"
)

const (
	// MCPName is the server name recorded on every tool call.
	MCPName = "mm"
	// ToolRun is the only tool this server exposes.
	ToolRun = "run"
	// CallerID identifies this server to the session pool.
	CallerID = "mm-mcp"

	// summaryLimit is how much of a result is inspected for error text.
	summaryLimit = 100
	previewLimit = 100

	deviceLoginURL = "https://microsoft.com/devicelogin"
)

// Modules accepted by the run tool.
var Modules = []string{"exo", "pnp", "azure", "teams"}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Result is the text returned to the caller of a tool.
type Result struct {
	Text string `json:"text"`
}

// CallContext carries per-call attribution.
type CallContext struct {
	ConversationID string
}

// Runner executes commands on the session pool.
type Runner interface {
	Run(ctx context.Context, req pool.RunRequest) *pool.RunResult
}

// Recorder is where calls and session transitions are logged.
type Recorder interface {
	RecordToolCall(call activity.ToolCall)
	RecordSessionEvent(in activity.SessionEventInput)
}

// Config configures a Dispatcher.
type Config struct {
	Registry registry.ConnectionRegistry
	Pool     Runner
	Recorder Recorder
	Logger   *zap.Logger
}

// Dispatcher routes tool calls and records each of them.
type Dispatcher struct {
	registry registry.ConnectionRegistry
	pool     Runner
	recorder Recorder
	schema   *jsonschema.Schema
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Dispatcher. It fails only if the run tool schema does not compile.
func New(cfg Config) (*Dispatcher, error) {
	schema, err := compileSchema(runInputSchema())
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		pool:     cfg.Pool,
		recorder: cfg.Recorder,
		schema:   schema,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Tools lists the tools this dispatcher serves.
func (d *Dispatcher) Tools() []Tool {
	return []Tool{{
		Name:        ToolRun,
		Description: "Execute a PowerShell command. Omit all params to list connections. Provide connection+module+command to execute.",
		InputSchema: runInputSchema(),
	}}
}

// Call runs tool name with args and records the call. The returned error is
// non-nil only for infrastructure failures; user-facing problems are
// reported in the result text.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any, cc CallContext) (*Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	start := d.now()
	res, err := d.call(ctx, name, args, cc)

	callErr := err
	if callErr == nil && res != nil {
		if head := activity.TruncateRunes(res.Text, summaryLimit); strings.Contains(strings.ToLower(head), "error") {
			callErr = errors.New(head)
		}
	}
	connection, _ := args["connection"].(string)
	d.recorder.RecordToolCall(activity.ToolCall{
		MCPName:        MCPName,
		ToolName:       name,
		Arguments:      args,
		ConnectionName: connection,
		ConversationID: cc.ConversationID,
		Err:            callErr,
		DurationMs:     activity.Millis(d.now().Sub(start)),
	})
	return res, err
}

func (d *Dispatcher) call(ctx context.Context, name string, args map[string]any, cc CallContext) (*Result, error) {
	if name != ToolRun {
		return text("Unknown tool: %s", name), nil
	}
	if err := d.schema.Validate(any(withoutBlanks(args))); err != nil {
		return text("Error: invalid arguments: %v", err), nil
	}

	connection, _ := args["connection"].(string)
	module, _ := args["module"].(string)
	command, _ := args["command"].(string)

	if connection == "" && module == "" && command == "" {
		return d.listConnections(ctx)
	}
	if connection == "" || module == "" || command == "" {
		return text("Error: connection, module, and command are all required"), nil
	}

	conn, err := d.registry.GetConnection(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("Call: %w", err)
	}
	if conn == nil {
		return d.connectionNotFound(ctx, connection)
	}

	result := d.pool.Run(ctx, pool.RunRequest{
		Connection: connection,
		Module:     module,
		Command:    command,
		CallerID:   CallerID,
	})

	switch result.Status {
	case pool.StatusAuthRequired:
		d.recorder.RecordSessionEvent(activity.SessionEventInput{
			Event:          activity.EventAuthPending,
			Tenant:         conn.Tenant,
			Module:         module,
			ConversationID: cc.ConversationID,
			Details:        map[string]any{"connection": connection},
		})
		return deviceCodeMessage(conn, module, result.DeviceCode), nil
	case pool.StatusAuthInProgress:
		return text("Auth in progress by another caller. Retry in a few seconds."), nil
	case pool.StatusError:
		msg := result.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return text("Error: %s", msg), nil
	case pool.StatusSuccess:
		details := map[string]any{
			"connection":      connection,
			"command_preview": activity.TruncateRunes(command, previewLimit),
		}
		if result.AuthenticatedAs != "" {
			details["authenticated_as"] = result.AuthenticatedAs
		}
		d.recorder.RecordSessionEvent(activity.SessionEventInput{
			Event:          activity.EventCommandRun,
			Tenant:         conn.Tenant,
			Module:         module,
			ConversationID: cc.ConversationID,
			Details:        details,
		})
		return successMessage(conn, result), nil
	default:
		raw, err := json.MarshalIndent(result.Raw, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("Call: %w", err)
		}
		return &Result{Text: string(raw)}, nil
	}
}

func (d *Dispatcher) listConnections(ctx context.Context) (*Result, error) {
	conns, err := d.registry.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listConnections: %w", err)
	}
	var b strings.Builder
	b.WriteString("**Available Connections:**\n")
	for _, c := range conns {
		tenant := c.Tenant
		if tenant == "" {
			tenant = "unknown"
		}
		hint := ""
		if c.ExpectedEmail != "" {
			hint = " [" + c.ExpectedEmail + "]"
		}
		fmt.Fprintf(&b, "- **%s**: %s%s\n  %s\n", c.Name, tenant, hint, c.Description)
	}
	return &Result{Text: b.String()}, nil
}

func (d *Dispatcher) connectionNotFound(ctx context.Context, name string) (*Result, error) {
	conns, err := d.registry.ListConnections(ctx)
	if err != nil {
		d.logger.Warn("list connections failed", zap.Error(err))
	}
	names := make([]string, 0, len(conns))
	for _, c := range conns {
		names = append(names, c.Name)
	}
	return text("Error: Connection '%s' not found in registry.\nAvailable: %s\n\nConnections must be pre-created in ~/%s",
		name, strings.Join(names, ", "), registry.ConnectionsFile), nil
}

func deviceCodeMessage(conn *registry.Connection, module, code string) *Result {
	hint := ""
	switch {
	case conn.ExpectedEmail != "":
		hint = fmt.Sprintf("\n>>> SIGN IN AS: %s <<<", conn.ExpectedEmail)
	case conn.Tenant != "":
		hint = fmt.Sprintf("\n>>> Sign in with your @%s account <<<", conn.Tenant)
	}
	return text("**DEVICE CODE: %s**\nGo to: %s\n%s\n\nConnection: %s\nModule: %s\n\nAfter authenticating, retry the command.",
		code, deviceLoginURL, hint, conn.Name, module)
}

func successMessage(conn *registry.Connection, result *pool.RunResult) *Result {
	output := StripANSI(result.Output)
	if result.AuthenticatedAs != "" && conn.ExpectedEmail != "" &&
		!strings.EqualFold(conn.ExpectedEmail, result.AuthenticatedAs) {
		output = fmt.Sprintf("WARNING: Wrong account! Expected %s, got %s\n\n", conn.ExpectedEmail, result.AuthenticatedAs) + output
	}
	output = strings.TrimSpace(output)
	if output == "" {
		output = "(no output)"
	}
	return &Result{Text: output}
}

func text(format string, args ...any) *Result {
	return &Result{Text: fmt.Sprintf(format, args...)}
}

// withoutBlanks drops empty-string arguments so callers that send every field
// blank are treated like callers that omit them.
func withoutBlanks(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}
