package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/triage-ai/mcp-activity/internal/activity"
)

// executor runs a parsed command.
type executor func(ctx context.Context, store *activity.Store, out *json.Encoder) error

// command registers its flags on fs and returns the executor to run after
// parsing.
type command func(fs *pflag.FlagSet) executor

var commands = map[string]command{
	"history":        historyCommand,
	"sessions":       sessionsCommand,
	"orphans":        orphansCommand,
	"tools":          toolsCommand,
	"record-session": recordSessionCommand,
}

func historyCommand(fs *pflag.FlagSet) executor {
	var f activity.SessionFilter
	var limit int
	fs.StringVar(&f.Tenant, "tenant", "", "only this tenant")
	fs.StringVar(&f.Module, "module", "", "only this module")
	fs.StringVar(&f.ConversationID, "conversation", "", "only this conversation id")
	fs.StringVar(&f.Event, "event", "", "only this event type")
	fs.IntVarP(&limit, "limit", "n", activity.DefaultLimit, "return at most the last N matches (0 for all)")

	return func(ctx context.Context, store *activity.Store, out *json.Encoder) error {
		return encodeAll(out, store.QuerySessionHistory(ctx, f, limit))
	}
}

func sessionsCommand(_ *pflag.FlagSet) executor {
	return func(ctx context.Context, store *activity.Store, out *json.Encoder) error {
		return encodeAll(out, store.SessionStates(ctx))
	}
}

func orphansCommand(fs *pflag.FlagSet) executor {
	var active []string
	fs.StringSliceVar(&active, "active", nil, "active conversation ids (repeatable or comma separated)")

	return func(ctx context.Context, store *activity.Store, out *json.Encoder) error {
		return encodeAll(out, store.FindOrphanSessions(ctx, active))
	}
}

func toolsCommand(fs *pflag.FlagSet) executor {
	var f activity.ToolCallFilter
	var limit int
	fs.StringVar(&f.MCPName, "mcp", "", "only this MCP server")
	fs.StringVar(&f.ToolName, "tool", "", "only this tool")
	fs.StringVar(&f.ConnectionName, "connection", "", "only this connection")
	fs.StringVar(&f.ConversationID, "conversation", "", "only this conversation id")
	fs.BoolVar(&f.FailedOnly, "failed", false, "only failed calls")
	fs.IntVarP(&limit, "limit", "n", activity.DefaultLimit, "return at most the last N matches (0 for all)")

	return func(ctx context.Context, store *activity.Store, out *json.Encoder) error {
		return encodeAll(out, store.QueryToolCalls(ctx, f, limit))
	}
}

func recordSessionCommand(fs *pflag.FlagSet) executor {
	var in activity.SessionEventInput
	var details string
	var duration float64
	fs.StringVar(&in.Event, "event", "", "event type, e.g. session_start (required)")
	fs.StringVar(&in.Tenant, "tenant", "", "tenant domain")
	fs.StringVar(&in.Module, "module", "", "module, e.g. exo")
	fs.StringVar(&in.ConversationID, "conversation", "", "owning conversation id")
	fs.StringVar(&details, "details", "", "details as a JSON object")
	fs.Float64Var(&duration, "duration", 0, "duration in seconds")

	return func(_ context.Context, store *activity.Store, out *json.Encoder) error {
		if in.Event == "" {
			return errors.New("--event is required")
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &in.Details); err != nil {
				return fmt.Errorf("invalid --details: %w", err)
			}
		}
		if fs.Changed("duration") {
			in.DurationSeconds = &duration
		}
		store.RecordSessionEvent(in)
		return out.Encode(map[string]string{"status": "recorded", "path": store.SessionLogPath()})
	}
}

func encodeAll[T any](out *json.Encoder, records []T) error {
	for i := range records {
		if err := out.Encode(&records[i]); err != nil {
			return err
		}
	}
	return nil
}
