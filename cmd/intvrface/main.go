// Command intvrface serves the hub: the websocket endpoint that lets one
// or more browser clients create, start, pause, and chat with a fleet of
// sandboxed desktop agents.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codespaceDrifter/intvrface/hub"
	"github.com/codespaceDrifter/intvrface/internal/config"
	"github.com/codespaceDrifter/intvrface/observer"
	"github.com/codespaceDrifter/intvrface/sandbox"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfgPath := os.Getenv("INTVRFACE_CONFIG")
	cfg := config.Load(cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing, err := observer.Init(ctx)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	sandboxCfg := sandbox.Config{
		DockerHost:    cfg.Sandbox.DockerHost,
		ImageTag:      cfg.Sandbox.ImageTag,
		ScreenWidth:   cfg.Sandbox.ScreenWidth,
		ScreenHeight:  cfg.Sandbox.ScreenHeight,
		ReadyPoll:     time.Duration(cfg.Sandbox.ReadyPollMillis) * time.Millisecond,
		ReadyTimeout:  time.Duration(cfg.Sandbox.ReadyTimeoutSec) * time.Second,
		WorkspaceRoot: cfg.Hub.DataRoot + "/workspace",
		BuildRoot:     cfg.Hub.DataRoot + "/docker_build",
	}
	modelCfg := hub.ModelConfig{
		APIKey:           cfg.Model.APIKey,
		Model:            cfg.Model.Model,
		MaxTokens:        cfg.Model.MaxTokens,
		SummaryMaxTokens: cfg.Model.SummaryMaxTokens,
		MaxWords:         cfg.Model.MaxWords,
		PreserveLast:     cfg.Model.PreserveLast,
	}

	auditStore := hub.NewStore(cfg.Hub.DataRoot+"/audit.db", hub.WithStoreLogger(logger))
	if err := auditStore.Init(ctx); err != nil {
		logger.Error("audit store init failed", "error", err)
		os.Exit(1)
	}
	defer auditStore.Close()

	registry, err := hub.New(cfg.Hub.DataRoot, sandboxCfg, modelCfg,
		hub.WithLogger(logger),
		hub.WithAuditStore(auditStore),
	)
	if err != nil {
		logger.Error("registry init failed", "error", err)
		os.Exit(1)
	}

	h := hub.NewHub(registry, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	if cfg.Hub.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Hub.StaticDir)))
	}
	if cfg.Hub.NoVNCDir != "" {
		mux.Handle("/novnc/", http.StripPrefix("/novnc/", http.FileServer(http.Dir(cfg.Hub.NoVNCDir))))
	}

	srv := &http.Server{
		Addr:         cfg.Hub.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Hub.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
