package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"

	"github.com/incidentlens/incidentlens/internal/alerts"
	"github.com/incidentlens/incidentlens/internal/api"
	"github.com/incidentlens/incidentlens/internal/config"
	"github.com/incidentlens/incidentlens/internal/diag"
	"github.com/incidentlens/incidentlens/internal/history"
	"github.com/incidentlens/incidentlens/internal/pipeline"
	"github.com/incidentlens/incidentlens/internal/source"
	"github.com/incidentlens/incidentlens/internal/store"
	"github.com/incidentlens/incidentlens/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis service: scheduled refreshes, REST API, WebSocket stream and /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

// refresher re-runs the pipeline on a schedule and fans the fresh report
// out to the store, run history, alert engine, metrics and WebSocket hub.
// Config reloads swap its options under the mutex.
type refresher struct {
	src  source.Source
	st   *store.Store
	hist *history.Store // nil when run history is disabled
	eng  *alerts.Engine
	met  *diag.Metrics
	hub  *ws.Hub

	mu      sync.Mutex
	opts    pipeline.Options
	timeout time.Duration
	keep    int
}

func (r *refresher) update(cfg *config.Config) {
	r.mu.Lock()
	r.opts = pipelineOptions(cfg)
	r.timeout = cfg.Dataset.Timeout
	r.keep = cfg.History.Keep
	r.mu.Unlock()
}

func (r *refresher) refresh(ctx context.Context) {
	r.mu.Lock()
	opts, timeout, keep := r.opts, r.timeout, r.keep
	r.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	rows, err := r.src.Fetch(fetchCtx)
	if err != nil {
		slog.Error("refresh: fetch failed", "err", err)
		return
	}

	rep, err := pipeline.Run(ctx, rows, opts)
	if err != nil {
		slog.Error("refresh: pipeline failed", "err", err)
		return
	}

	r.st.Put(rep)
	r.met.ObserveRun(rep, time.Now().UTC())
	r.hub.Notify()

	if fired := r.eng.Evaluate(rep); len(fired) > 0 {
		slog.Info("refresh: alerts fired", "count", len(fired))
	}

	if r.hist != nil {
		if err := r.hist.Save(ctx, rep); err != nil {
			slog.Error("refresh: history save failed", "err", err)
		} else if err := r.hist.Prune(ctx, keep); err != nil {
			slog.Warn("refresh: history prune failed", "err", err)
		}
	}
}

func runServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("incidentlens serve starting",
		"http_port", cfg.Server.HTTPPort,
		"dataset_type", cfg.Dataset.Type,
		"refresh_interval", cfg.Refresh.Interval,
	)

	src, err := source.New(cfg.Dataset)
	if err != nil {
		return err
	}

	// Reports older than three refresh intervals are stale.
	st := store.New(3 * cfg.Refresh.Interval)
	go st.Run(ctx)

	var hist *history.Store
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	engine := alerts.New(cfg.Alerts)
	metrics := diag.New()

	hub := ws.New(st)
	go hub.Run(ctx)

	ref := &refresher{src: src, st: st, hist: hist, eng: engine, met: metrics, hub: hub}
	ref.update(cfg)

	// First report before the listener comes up, so /api/v1/summary has
	// data from the start.
	ref.refresh(ctx)

	sched := gocron.NewScheduler(time.UTC)
	if _, err := sched.Every(cfg.Refresh.Interval).Do(func() { ref.refresh(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	sched.StartAsync()
	defer sched.Stop()

	// Hot-reload analysis options and alert rules on config file changes.
	go func() {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			ref.update(next)
			engine.UpdateConfig(next.Alerts)
			slog.Info("config reloaded", "path", configPath)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("config watch stopped", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(st, engine, hist))
	mux.Handle("/ws/stream", hub)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: mux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("incidentlens serve shutting down")
	return srv.Shutdown(context.Background())
}
