// Package activity is the shared activity log of the MCP tool processes.
//
// Every process appends tool calls and session lifecycle events to two JSON
// Lines files in a common directory. Readers reconstruct session state by
// scanning a file front to back; there is no index and no cache between
// calls. Writers never coordinate with each other or with readers.
package activity

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	// ToolLogFile holds one ToolCallEvent per line.
	ToolLogFile = "mcp-activity.jsonl"
	// SessionLogFile holds one SessionEvent per line.
	SessionLogFile = "pwsh-sessions.jsonl"

	toolLogName    = "tool_calls"
	sessionLogName = "sessions"
)

// DefaultDir returns the per-user log directory, ~/.m365-mcp/logs.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("DefaultDir: %w", err)
	}
	return filepath.Join(home, ".m365-mcp", "logs"), nil
}

// Config configures a Store.
type Config struct {
	// Dir holds both log files. Ignored for a file whose path is set below.
	Dir            string
	ToolLogPath    string
	SessionLogPath string
	// Mirrors receive every record after it has been appended locally.
	Mirrors []EventWriter
	Logger  *zap.Logger
}

// Store records and reads the tool-call and session logs.
type Store struct {
	toolPath    string
	sessionPath string
	tools       EventWriter
	sessions    EventWriter
	logger      *zap.Logger
}

// New creates a Store. No file is touched until the first write or read.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	toolPath := cfg.ToolLogPath
	if toolPath == "" {
		toolPath = filepath.Join(cfg.Dir, ToolLogFile)
	}
	sessionPath := cfg.SessionLogPath
	if sessionPath == "" {
		sessionPath = filepath.Join(cfg.Dir, SessionLogFile)
	}

	var tools, sessions EventWriter = NewJSONLWriter(toolPath, toolLogName, logger),
		NewJSONLWriter(sessionPath, sessionLogName, logger)
	if len(cfg.Mirrors) > 0 {
		tools = NewMultiWriter(append([]EventWriter{tools}, cfg.Mirrors...)...)
		// Mirrors are shared between both logs; close them once, via tools.
		sessions = NewMultiWriter(append([]EventWriter{sessions}, unclosable(cfg.Mirrors)...)...)
	}

	return &Store{
		toolPath:    toolPath,
		sessionPath: sessionPath,
		tools:       tools,
		sessions:    sessions,
		logger:      logger,
	}
}

// ToolLogPath returns the tool-call log location.
func (s *Store) ToolLogPath() string { return s.toolPath }

// SessionLogPath returns the session log location.
func (s *Store) SessionLogPath() string { return s.sessionPath }

// Close flushes and closes any mirrors.
func (s *Store) Close() {
	s.tools.Close()
	s.sessions.Close()
}

type noClose struct{ EventWriter }

func (noClose) Close() {}

func unclosable(writers []EventWriter) []EventWriter {
	out := make([]EventWriter, len(writers))
	for i, w := range writers {
		out[i] = noClose{w}
	}
	return out
}
