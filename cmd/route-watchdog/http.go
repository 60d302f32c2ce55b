package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/RouteBox/config"
	"github.com/BearBump/RouteBox/internal/services/watchdog"
)

type watchdogHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	watchdog *watchdog.Watchdog
	cfg      *config.Config
}

func runWatchdogHTTPServer(ctx context.Context, opts watchdogHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.watchdog == nil {
			_, _ = w.Write([]byte(`{"error":"watchdog not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.watchdog.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Avoid dumping secrets; show only operational watchdog settings.
		out := map[string]any{
			"pollIntervalSeconds":        opts.cfg.RouteBox.WatchdogPollIntervalSeconds,
			"batchSize":                  opts.cfg.RouteBox.WatchdogBatchSize,
			"concurrency":                opts.cfg.RouteBox.WatchdogConcurrency,
			"leaseSeconds":               opts.cfg.RouteBox.WatchdogLeaseSeconds,
			"rateLimitPerMinute":         opts.cfg.RouteBox.WatchdogRateLimitPerMinute,
			"autoReplanThresholdMinutes": opts.cfg.RouteBox.AutoReplanThresholdMinutes,
			"replanCooldownMinutes":      opts.cfg.RouteBox.ReplanCooldownMinutes,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.watchdog == nil {
			_, _ = w.Write([]byte(`{"error":"watchdog not wired"}`))
			return
		}
		opts.watchdog.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
