package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rgabriel/mcp-gmail/config"
	"github.com/rgabriel/mcp-gmail/continuation"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/notify"
	"github.com/rgabriel/mcp-gmail/telemetry"
	"github.com/rgabriel/mcp-gmail/tools"
	"github.com/rgabriel/mcp-gmail/validation"
)

// version is set at build time via ldflags
var version = "dev"

const keyringService = "mcp-gmail"

func main() {
	// Initialize structured logging
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelInfo)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		switch strings.ToUpper(lvl) {
		case "DEBUG":
			logLevel.Set(slog.LevelDebug)
		case "WARN":
			logLevel.Set(slog.LevelWarn)
		case "ERROR":
			logLevel.Set(slog.LevelError)
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	creds := openCredentials(cfg)
	if err := resolveSecrets(cfg, creds); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	provider, closeProvider, err := openProvider(ctx, cfg, creds)
	if err != nil {
		slog.Error("failed to create Gmail client", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer closeProvider()

	// Test the connection by listing folders
	if _, err := provider.Folders(ctx); err != nil {
		slog.Error("failed to connect to Gmail (check credentials)", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}

	store, err := continuation.Open(ctx, continuation.Options{
		Driver:    cfg.Continuation.Store,
		Path:      cfg.Continuation.Path,
		ProjectID: cfg.Continuation.Project,
		Kind:      cfg.Continuation.Kind,
		TTL:       cfg.Continuation.TTL,
	})
	if err != nil {
		slog.Error("failed to open continuation store", "store", cfg.Continuation.Store, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	counters := telemetry.NewCounters()
	ops := tools.Catalog(provider, tools.SearchOptions{EmptyIsInvalid: cfg.SearchEmptyIsError})
	engine := tools.NewEngine(
		validation.NewOrchestrator(tools.Table(ops)),
		store,
		tools.WithTelemetry(telemetry.Multi(telemetry.Log{Logger: logger}, counters)),
		tools.WithLogger(logger),
	)

	// Create MCP server with middleware (applied in reverse: logging wraps timeout wraps handler)
	s := server.NewMCPServer(
		"Gmail Server",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(timeoutMiddleware(cfg.ToolTimeout)),
		server.WithToolHandlerMiddleware(loggingMiddleware()),
	)
	tools.Register(s, engine, ops)

	if cfg.Notify.Enabled() {
		if err := startNotify(ctx, cfg, provider, counters, logger); err != nil {
			slog.Error("failed to start push endpoint", "error", err)
			os.Exit(1)
		}
	}

	// Log startup
	slog.Info("server starting",
		"version", version,
		"email", cfg.Address,
		"backend", cfg.Backend,
		"continuation_store", cfg.Continuation.Store,
		"tools", len(ops)*3,
	)

	// Start the stdio server with cancellable context
	stdioServer := server.NewStdioServer(s)
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// startNotify runs the Pub/Sub push endpoint and keeps the Gmail watch
// registered until ctx is cancelled.
func startNotify(ctx context.Context, cfg *config.Config, provider mailbox.Provider, counters *telemetry.Counters, logger *slog.Logger) error {
	source, ok := provider.(notify.Source)
	if !ok {
		return errNoWatch
	}

	// stdout carries the MCP stream.
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr

	var sink notify.Sink = notify.LogSink{Logger: logger}
	if cfg.Notify.HookURL != "" {
		sink = notify.HookSink{URL: cfg.Notify.HookURL, Token: cfg.Notify.HookToken}
	}

	srv := notify.NewServer(source, sink,
		notify.WithToken(cfg.Notify.Token),
		notify.WithCounters(counters),
		notify.WithLogger(logger),
	)
	renewer := &notify.Renewer{
		Watcher: source,
		Topic:   cfg.Notify.Topic,
		Labels:  cfg.Notify.Labels,
		Every:   cfg.Notify.RenewEvery,
		OnWatch: srv.Watched,
		Logger:  logger,
	}

	go renewer.Run(ctx)
	go func() {
		if err := srv.Serve(ctx, cfg.Notify.Addr); err != nil {
			slog.Error("push endpoint stopped", "error", err)
		}
	}()
	return nil
}

// timeoutMiddleware wraps each tool handler with a context deadline.
func timeoutMiddleware(timeout time.Duration) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// loggingMiddleware logs each tool call with a unique request ID, tool name, duration, and outcome.
func loggingMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			requestID := uuid.New().String()
			tool := req.Params.Name
			logger := slog.With("request_id", requestID, "tool", tool)

			logger.Debug("tool call started")
			start := time.Now()

			result, err := next(ctx, req)
			duration := time.Since(start)

			switch {
			case mailbox.IsAuthError(err):
				logger.Warn("tool call needs authorization", "duration_ms", duration.Milliseconds(), "error", err)
			case err != nil:
				logger.Error("tool call failed", "duration_ms", duration.Milliseconds(), "error", err)
			case result != nil && result.IsError:
				logger.Warn("tool call returned error", "duration_ms", duration.Milliseconds(), "error_kind", errorKind(result))
			default:
				logger.Info("tool call completed", "duration_ms", duration.Milliseconds())
			}

			return result, err
		}
	}
}

// errorKind reads the errorKind field of a failed tool result.
func errorKind(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		text, ok := c.(mcp.TextContent)
		if !ok {
			continue
		}
		var body struct {
			ErrorKind string `json:"errorKind"`
		}
		if json.Unmarshal([]byte(text.Text), &body) == nil && body.ErrorKind != "" {
			return body.ErrorKind
		}
	}
	return "unknown"
}
