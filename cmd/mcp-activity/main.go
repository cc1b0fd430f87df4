// mcp-activity inspects the tool-call and session logs from the command line.
// Every query prints one JSON object per line on stdout; diagnostics go to
// stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/mcp-activity/internal/activity"
	"github.com/triage-ai/mcp-activity/internal/config"
)

const usage = `Usage: mcp-activity <command> [flags]

Commands:
  history          session events, optionally filtered
  sessions         current state of every session
  orphans          open sessions not owned by an active conversation
  tools            recorded tool calls, optionally filtered
  record-session   append one session event

Run "mcp-activity <command> --help" for command flags.
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the flags shared by every command.
type globals struct {
	logDir   string
	logLevel string
}

func (g *globals) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&g.logDir, "log-dir", "", "directory holding the activity logs (default: $MCP_ACTIVITY_LOG_DIR or ~/.m365-mcp/logs)")
	fs.StringVar(&g.logLevel, "log-level", "", "diagnostic log level on stderr (default: $MCP_ACTIVITY_LOG_LEVEL or warn)")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return errors.New("missing command")
		}
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}

	var g globals
	fs := pflag.NewFlagSet("mcp-activity "+args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	g.addFlags(fs)
	exec := cmd(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	store, logger, err := g.open(stderr)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	defer store.Close()

	return exec(ctx, store, json.NewEncoder(stdout))
}

// open builds the store from flags layered over the environment config.
func (g *globals) open(stderr io.Writer) (*activity.Store, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := g.logLevel
	if level == "" {
		level = os.Getenv(config.EnvLogLevel)
	}
	logger := buildLogger(level, stderr)

	dir := g.logDir
	if dir == "" {
		dir = cfg.LogDir
	}
	if dir == "" {
		if dir, err = activity.DefaultDir(); err != nil {
			return nil, nil, err
		}
	}
	return activity.New(activity.Config{Dir: dir, Logger: logger}), logger, nil
}

// buildLogger writes JSON diagnostics to w, warn level unless asked otherwise.
func buildLogger(level string, w io.Writer) *zap.Logger {
	zapLevel := zapcore.WarnLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		zapLevel,
	)
	return zap.New(core)
}
