package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pairwave/signaling-relay/internal/config"
	"github.com/pairwave/signaling-relay/internal/httpserver"
	"github.com/pairwave/signaling-relay/internal/metrics"
	"github.com/pairwave/signaling-relay/internal/signaling"
	"github.com/pairwave/signaling-relay/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	// A local .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting pairwave-signaling-relay",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"reaper_interval", cfg.ReaperInterval,
		"connection_idle_timeout", cfg.ConnectionIdleTimeout,
		"max_connections", cfg.MaxConnections,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest_enabled", cfg.TurnREST.Enabled(),
	)

	logStartupSecurityWarnings(logger, cfg)

	var turnGen *turnrest.Generator
	if cfg.TurnREST.Enabled() {
		turnGen, err = turnrest.NewGenerator(turnrest.GeneratorConfig{
			SharedSecret:   cfg.TurnREST.SharedSecret,
			TTLSeconds:     cfg.TurnREST.TTLSeconds,
			UsernamePrefix: cfg.TurnREST.UsernamePrefix,
		})
		if err != nil {
			logger.Error("failed to configure turn rest credentials", "err", err)
			os.Exit(2)
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	hub := signaling.NewHub(signaling.HubConfig{Logger: logger})
	ws := signaling.NewServer(hub, cfg.AllowedOrigins, signaling.ServerConfig{
		MaxConnections:       cfg.MaxConnections,
		WSIdleTimeout:        cfg.SignalingWSIdleTimeout,
		WSPingInterval:       cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: int64(cfg.MaxSignalingMessagesPerSecond),
	}, logger)

	srv := httpserver.New(cfg, logger, buildInfo(), turnGen)
	srv.Mux().Handle("GET /ws", ws)

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(hub.Metrics()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper := &signaling.Reaper{
		Hub:       hub,
		Interval:  cfg.ReaperInterval,
		Threshold: cfg.ConnectionIdleTimeout,
		Log:       logger,
	}
	go reaper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		hub.Shutdown(signaling.ReasonServerShutdown)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Tell connected clients first, then drain the HTTP server.
	hub.Shutdown(signaling.ReasonServerShutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func buildInfo() httpserver.BuildInfo {
	commit, builtAt := buildCommit, buildTime
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if builtAt == "" {
					builtAt = s.Value
				}
			}
		}
	}
	return httpserver.BuildInfo{Commit: commit, BuildTime: builtAt}
}
