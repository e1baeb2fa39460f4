// CLAUDE:SUMMARY Entry point for the lplens HTTP service: config, SQLite stores, analysis service, chi routes, MCP over streamable HTTP.
package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lplens/auth"
	"github.com/hazyhaar/lplens/dbopen"
	"github.com/hazyhaar/lplens/lplens"
	"github.com/hazyhaar/lplens/observability"
	"github.com/hazyhaar/lplens/shield"
	"github.com/hazyhaar/lplens/trace"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	mintToken := flag.String("mint-token", "", "print a session token for this account id and exit")
	flag.Parse()

	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(env("LOG_LEVEL", "info"))}))
	slog.SetDefault(logger)

	secretInput := os.Getenv("SESSION_SECRET")
	if secretInput == "" {
		slog.Error("SESSION_SECRET is required")
		os.Exit(1)
	}
	// Derive 32-byte JWT secret via SHA-256 (satisfies horosafe.MinSecretLen).
	secretHash := sha256.Sum256([]byte(secretInput))
	jwtSecret := secretHash[:]

	if *mintToken != "" {
		token, err := auth.GenerateToken(jwtSecret, &auth.Claims{UserID: *mintToken}, 30*24*time.Hour)
		if err != nil {
			slog.Error("mint token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	cfg := lplens.DefaultConfig()
	if *configPath != "" {
		loaded, err := lplens.LoadConfigFile(*configPath)
		if err != nil {
			slog.Error("load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyEnv(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB: business events and SQL traces. Raw "sqlite" driver
	// so trace writes are not traced themselves. Telemetry, so no fsync per
	// commit.
	obsDB, err := dbopen.Open(env("OBS_DB", "data/events.db"), dbopen.WithMkdirAll(), dbopen.WithSynchronous("OFF"))
	if err != nil {
		slog.Error("open observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		slog.Error("observability init", "error", err)
		os.Exit(1)
	}
	traces := trace.NewStore(obsDB)
	if err := traces.Init(); err != nil {
		slog.Error("trace init", "error", err)
		os.Exit(1)
	}
	trace.SetRecorder(traces)
	defer traces.Close()

	db, err := dbopen.Open(env("DB_PATH", "data/lplens.db"), dbopen.WithMkdirAll(), dbopen.WithDriver(trace.DriverName))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	events := observability.NewEventLogger(obsDB, observability.WithEventLogger(logger))

	svc, err := lplens.New(db, cfg, logger, lplens.WithEvents(events))
	if err != nil {
		slog.Error("lplens service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()
	svc.Start(ctx)

	go cleanup(ctx, events, traces, 30*24*time.Hour)

	limiter := shield.NewRateLimiter(map[string]shield.RateLimitConfig{
		"analyze": {MaxRequests: 10, Window: time.Minute},
	})
	limiter.StartGC(5*time.Minute, ctx.Done())

	a := &api{svc: svc, secret: jwtSecret, limiter: limiter}
	if env("MCP_ENABLED", "true") == "true" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "lplens", Version: "1.0.0"}, nil)
		svc.RegisterMCP(mcpSrv)
		a.mcp = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
	}

	port := env("PORT", "8090")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Analyze blocks for capture plus reasoning.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		slog.Info("lplens: listening", "addr", srv.Addr, "mcp", a.mcp != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("lplens: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
}

// applyEnv lets the environment override the config file.
func applyEnv(cfg *lplens.Config) {
	set := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set("SCREENSHOT_DIR", &cfg.ScreenshotDir)
	set("LANGUAGE", &cfg.Language)
	set("ANTHROPIC_API_KEY", &cfg.Reasoning.APIKey)
	set("REASONING_API_KEY", &cfg.Reasoning.APIKey)
	set("REASONING_ENDPOINT", &cfg.Reasoning.Endpoint)
	set("REASONING_PROTOCOL", &cfg.Reasoning.Protocol)
	set("REASONING_MODEL", &cfg.Reasoning.Model)
	set("CHROME_REMOTE_URL", &cfg.Browser.RemoteURL)
	set("CHROME_BIN", &cfg.Browser.Bin)
	if v := os.Getenv("AUTO_ANALYZE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = b
		}
	}
}

// cleanup prunes events and SQL traces older than retention once a day.
func cleanup(ctx context.Context, events *observability.EventLogger, traces *trace.Store, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev, err := events.Cleanup(ctx, retention)
			if err != nil {
				slog.Warn("cleanup: events", "error", err)
			}
			tr, err := traces.Cleanup(ctx, retention)
			if err != nil {
				slog.Warn("cleanup: traces", "error", err)
			}
			slog.Info("cleanup: done", "events", ev, "traces", tr)
		}
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
