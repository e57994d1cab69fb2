package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/steveyiyo/toole/internal/app"
	"github.com/steveyiyo/toole/internal/config"
	h "github.com/steveyiyo/toole/internal/http"
	"github.com/steveyiyo/toole/internal/repo/memory"
	"github.com/steveyiyo/toole/pkg/ws"
)

func main() {
	configFile := cli.StringP("config", "c", "", "Config file path")
	cli.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logs := config.SetupLogging(cfg.Logging)
	defer logs.Close()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo := memory.NewAnalysisRepo(cfg.Server.Retention)
	a, err := app.New(ctx, cfg, repo)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Retention > 0 {
		go repo.Run(ctx, cfg.Server.Retention/2)
	}

	hub := ws.NewHub()
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h.NewRouter(cfg.Server, a.Service, a.Speech, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		hub.CloseAll()
		shutdown, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(shutdown)
	}()

	slog.Info("toole listening", "addr", srv.Addr, "backend", a.Service.Backend())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
