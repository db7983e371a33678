package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/faheemlabs/faheem/pkg/config"
	"github.com/faheemlabs/faheem/pkg/gemini"
	"github.com/faheemlabs/faheem/pkg/jobs"
	"github.com/faheemlabs/faheem/pkg/logging"
	"github.com/faheemlabs/faheem/pkg/metrics"
	"github.com/faheemlabs/faheem/pkg/poller"
	"github.com/faheemlabs/faheem/pkg/runner"
	"github.com/faheemlabs/faheem/pkg/transcriber"
	"github.com/faheemlabs/faheem/pkg/upload"
)

// managerDrainer lets the lifecycle runner wait for in-flight
// transcriptions before the process exits.
type managerDrainer struct {
	manager *jobs.Manager
}

func (d managerDrainer) Drain() error {
	d.manager.Wait()
	return nil
}

func buildObserver(cfg config.ObservabilityConfig) (metrics.Observer, func()) {
	base := metrics.Observer(metrics.NewSlogObserver(slog.Default()))
	closeFn := func() {}
	if cfg.ArtifactsDir != "" {
		if err := os.MkdirAll(cfg.ArtifactsDir, 0o755); err != nil {
			slog.Warn("artifacts dir unavailable", "dir", cfg.ArtifactsDir, "error", err)
		} else {
			path := filepath.Join(cfg.ArtifactsDir, "metrics.jsonl")
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				slog.Warn("metrics file unavailable", "path", path, "error", err)
			} else {
				base = metrics.NewMultiObserver(base, metrics.NewJSONLObserver(f))
				closeFn = func() { _ = f.Close() }
			}
		}
	}
	async := metrics.NewAsyncObserver(base, 256)
	prev := closeFn
	return async, func() {
		async.Close()
		prev()
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}
	slog.SetDefault(logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat))

	obs, closeObs := buildObserver(cfg.Observability)
	defer closeObs()

	client, err := gemini.NewClient(gemini.Config{
		Endpoint: cfg.Backend.Endpoint,
		APIKey:   cfg.Backend.APIKey,
		Model:    cfg.Backend.Model,
	})
	if err != nil {
		panic(err)
	}

	uploadOpts, err := upload.OptionsFromSettings(cfg.Upload.Settings)
	if err != nil {
		panic(err)
	}
	selector := upload.NewSelector(client, append(uploadOpts, upload.WithObserver(obs))...)

	pollOpts := []poller.Option{poller.WithInterval(time.Duration(cfg.Poll.IntervalMS) * time.Millisecond)}
	if cfg.Poll.MaxWaitMS > 0 {
		pollOpts = append(pollOpts, poller.WithMaxWait(time.Duration(cfg.Poll.MaxWaitMS)*time.Millisecond))
	}
	readiness := poller.New(client, pollOpts...)

	orchestrator := transcriber.New(selector, readiness, client, transcriber.WithObserver(obs))

	hub := jobs.NewHub()
	manager := jobs.NewManager(orchestrator, jobs.WithBroadcaster(hub))

	mux := http.NewServeMux()
	jobs.NewAPI(manager, hub, os.TempDir()).Register(mux)
	server := &http.Server{
		Addr:              cfg.Worklist.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hooks := runner.Hooks{
		OnStart: func() {
			go func() {
				slog.Info("worklist listening", "addr", cfg.Worklist.Addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("worklist server failed", "error", err)
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

	app := runner.NewLifecycleRunner("FAHEEM", managerDrainer{manager}, hooks, 30*time.Second)
	if err := app.Run(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
