package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faheemlabs/faheem/pkg/config"
	"github.com/faheemlabs/faheem/pkg/logging"
	"github.com/faheemlabs/faheem/pkg/relay"
	"github.com/faheemlabs/faheem/pkg/runner"
)

func main() {
	configPath := flag.String("config", "config.yaml", "")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}
	slog.SetDefault(logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat))

	relayCfg, err := relay.ConfigFromSettings(relay.Config{
		ServiceName:      "faheem-relay",
		Version:          runner.Version,
		APIKeyConfigured: os.Getenv("GEMINI_API_KEY") != "",
	}, cfg.Relay.Settings)
	if err != nil {
		panic(err)
	}
	server := relay.NewServer(cfg.Relay.Addr, relayCfg)

	hooks := runner.Hooks{
		OnStart: func() {
			go func() {
				if err := server.Start(); err != nil {
					slog.Error("relay server failed", "error", err)
				}
			}()
		},
		OnStop: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := runner.NewLifecycleRunner("FAHEEM RELAY", nil, hooks, 15*time.Second)
	if err := app.Run(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
