package activity

import (
	"context"

	"github.com/triage-ai/mcp-activity/internal/metrics"
	"go.uber.org/zap"
)

// sessionStates is the last event per session key, in first-appearance order.
type sessionStates struct {
	order []SessionKey
	last  map[SessionKey]SessionEvent
}

func (s *Store) reduceSessions(ctx context.Context) *sessionStates {
	st := &sessionStates{last: make(map[SessionKey]SessionEvent)}
	s.scanSessions(ctx, func(e *SessionEvent) {
		key := e.Key()
		if _, seen := st.last[key]; !seen {
			st.order = append(st.order, key)
		}
		st.last[key] = *e
	})
	return st
}

// SessionStates returns the current state of every session in the log: the
// last event written for each (tenant, module) key, in the order the keys
// first appear.
func (s *Store) SessionStates(ctx context.Context) []SessionEvent {
	st := s.reduceSessions(ctx)
	out := make([]SessionEvent, 0, len(st.order))
	for _, key := range st.order {
		out = append(out, st.last[key])
	}
	return out
}

// FindOrphanSessions returns the sessions whose last event is not terminal
// and whose conversation is not in active. Sessions whose last event carries
// no conversation id are never reported.
func (s *Store) FindOrphanSessions(ctx context.Context, active []string) []SessionEvent {
	activeSet := make(map[string]struct{}, len(active))
	for _, id := range active {
		activeSet[id] = struct{}{}
	}

	st := s.reduceSessions(ctx)
	orphans := make([]SessionEvent, 0)
	for _, key := range st.order {
		e := st.last[key]
		if IsTerminal(e.Event) {
			continue
		}
		if e.ConversationID == "" {
			continue
		}
		if _, ok := activeSet[e.ConversationID]; ok {
			continue
		}
		orphans = append(orphans, e)
	}

	metrics.OrphanSessions.Set(float64(len(orphans)))
	if len(orphans) > 0 {
		s.logger.Debug("suspected orphan sessions",
			zap.Int("count", len(orphans)),
			zap.Int("sessions", len(st.order)),
		)
	}
	return orphans
}
