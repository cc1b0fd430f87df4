package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/triage-ai/mcp-activity/internal/activity"
	"github.com/triage-ai/mcp-activity/internal/api"
	"github.com/triage-ai/mcp-activity/internal/config"
	"github.com/triage-ai/mcp-activity/internal/dispatch"
	"github.com/triage-ai/mcp-activity/internal/pool"
	"github.com/triage-ai/mcp-activity/internal/registry"
	"github.com/triage-ai/mcp-activity/internal/storage"
)

const healthService = "mcp.activity.v1.ActivityService"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logDir := cfg.LogDir
	if logDir == "" {
		if logDir, err = activity.DefaultDir(); err != nil {
			logger.Fatal("failed to resolve log directory", zap.Error(err))
		}
	}

	logger.Info("starting mcp activity server",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("log_dir", logDir),
		zap.String("session_pool_url", cfg.PoolURL),
	)

	// Mirror: ClickHouse or LogWriter fallback
	var mirror activity.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			mirror = activity.NewLogWriter(logger)
		} else {
			mirror = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		mirror = activity.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, mirroring to log writer")
	}

	store := activity.New(activity.Config{
		Dir:     logDir,
		Mirrors: []activity.EventWriter{mirror},
		Logger:  logger,
	})
	defer store.Close()

	// Connection registry: Postgres if DSN provided, otherwise the JSON file
	var connections registry.ConnectionRegistry
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		connections = registry.NewPostgresRegistry(registry.PostgresRegistryConfig{
			DB:       db,
			CacheTTL: cfg.RegistryCacheTTL(),
			Logger:   logger,
		})
		logger.Info("postgres connection registry connected")
	} else {
		path := cfg.ConnectionsFile
		if path == "" {
			if path, err = registry.DefaultPath(); err != nil {
				logger.Fatal("failed to resolve connections file", zap.Error(err))
			}
		}
		connections = registry.NewFileRegistry(path)
		logger.Info("using file connection registry", zap.String("path", path))
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Registry: connections,
		Pool:     pool.NewClient(cfg.PoolURL, pool.DefaultTimeout),
		Recorder: store,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build dispatcher", zap.Error(err))
	}

	// HTTP API server
	httpServer := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(&api.Dependencies{
			Activity:   store,
			Dispatcher: dispatcher,
			APIKeyHash: cfg.APIKeyHash,
			Logger:     logger,
			CacheTTL:   cfg.RegistryCacheTTL(),
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: pool.DefaultTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.APIKeyHash == "" {
		logger.Warn("no ACTIVITY_API_KEY_HASH set, HTTP API is unauthenticated")
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// gRPC health server
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	go func() {
		logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("grpc server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("mcp activity server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
