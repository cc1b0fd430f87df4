package activity

import "context"

// DefaultLimit is the limit callers use when the user gives none.
const DefaultLimit = 100

// SessionFilter selects session events. Empty fields impose no constraint;
// set fields must all match.
type SessionFilter struct {
	Tenant         string
	Module         string
	ConversationID string
	Event          string
}

// Match reports whether e satisfies every set field of f.
func (f SessionFilter) Match(e *SessionEvent) bool {
	if f.Tenant != "" && e.Tenant != f.Tenant {
		return false
	}
	if f.Module != "" && e.Module != f.Module {
		return false
	}
	if f.ConversationID != "" && e.ConversationID != f.ConversationID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	return true
}

// QuerySessionHistory returns the last limit session events matching f, in
// file order; limit <= 0 returns every match. Unparseable lines are skipped
// and a missing log yields an empty result; it never returns an error.
func (s *Store) QuerySessionHistory(ctx context.Context, f SessionFilter, limit int) []SessionEvent {
	matches := newTail[SessionEvent](limit)
	s.scanSessions(ctx, func(e *SessionEvent) {
		if f.Match(e) {
			matches.push(*e)
		}
	})
	return matches.values()
}

// ToolCallFilter selects tool-call events. Empty fields impose no constraint.
type ToolCallFilter struct {
	MCPName        string
	ToolName       string
	ConnectionName string
	ConversationID string
	// FailedOnly keeps only calls recorded with success=false.
	FailedOnly bool
}

// Match reports whether e satisfies every set field of f.
func (f ToolCallFilter) Match(e *ToolCallEvent) bool {
	if f.MCPName != "" && e.MCPName != f.MCPName {
		return false
	}
	if f.ToolName != "" && e.ToolName != f.ToolName {
		return false
	}
	if f.ConnectionName != "" && e.ConnectionName != f.ConnectionName {
		return false
	}
	if f.ConversationID != "" && e.ConversationID != f.ConversationID {
		return false
	}
	if f.FailedOnly && e.Success {
		return false
	}
	return true
}

// QueryToolCalls returns the last limit tool calls matching f, in file order;
// limit <= 0 returns every match.
func (s *Store) QueryToolCalls(ctx context.Context, f ToolCallFilter, limit int) []ToolCallEvent {
	matches := newTail[ToolCallEvent](limit)
	s.scanToolCalls(ctx, func(e *ToolCallEvent) {
		if f.Match(e) {
			matches.push(*e)
		}
	})
	return matches.values()
}
