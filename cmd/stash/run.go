package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/stash/internal/auth"
	"github.com/eugener/stash/internal/circuitbreaker"
	"github.com/eugener/stash/internal/config"
	"github.com/eugener/stash/internal/origin"
	"github.com/eugener/stash/internal/respcache"
	"github.com/eugener/stash/internal/server"
	"github.com/eugener/stash/internal/telemetry"
	"github.com/eugener/stash/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting stash", "version", version, "addr", cfg.Server.Addr, "backend", cfg.Cache.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Stores
	st, err := newStores(cfg.Cache)
	if err != nil {
		return err
	}
	defer st.Close()

	// Origins
	resolver := &dnscache.Resolver{}
	transport := origin.NewTransport(resolver)
	origins, err := buildOrigins(cfg.Origins, cfg.Breaker, st, transport, metrics)
	if err != nil {
		return err
	}

	// Background workers
	workers := []worker.Worker{
		worker.NewDNSRefresher(cfg.DNS.RefreshInterval, resolver),
	}
	if len(st.sweepable) > 0 {
		workers = append(workers, worker.NewSweeper(cfg.Cache.SweepInterval, metrics, st.sweepable...))
	}
	if metrics != nil && len(origins) > 0 {
		sized := make([]worker.Sized, len(origins))
		for i, o := range origins {
			sized[i] = o.Gateway
		}
		workers = append(workers, worker.NewEntrySampler(cfg.Cache.SampleInterval, metrics.CacheEntries, sized...))
	}
	runner := worker.NewRunner(workers...)
	workerErr := make(chan error, 1)
	go func() { workerErr <- runner.Run(ctx) }()

	// Create HTTP server
	handler := server.New(server.Deps{
		Origins:        origins,
		AdminKey:       auth.NewStaticKey(cfg.Admin.Key),
		ReadyCheck:     st.Ping,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})
	if cfg.Admin.Key == "" {
		slog.Warn("admin API has no key configured")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("stash ready", "addr", cfg.Server.Addr, "origins", len(origins))

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	case err := <-workerErr:
		return fmt.Errorf("worker: %w", err)
	}

	// Shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	cancel()
	<-workerErr

	slog.Info("stash stopped")
	return nil
}

// buildOrigins creates a manual-response gateway and an upstream client for
// every configured origin.
func buildOrigins(entries []config.OriginEntry, bc config.BreakerConfig, st *stores, transport http.RoundTripper, metrics *telemetry.Metrics) ([]server.Origin, error) {
	origins := make([]server.Origin, 0, len(entries))
	for _, e := range entries {
		store, err := st.forOrigin(e)
		if err != nil {
			return nil, fmt.Errorf("origin %s: %w", e.Name, err)
		}

		opts := respcache.Options{
			Name:             e.Name,
			Auth:             scopeFunc(e),
			ManualResponse:   true,
			ResponseType:     e.ResolvedResponseType(),
			ShouldCheckCache: respcache.SafeMethods,
			ShouldCache:      respcache.GetOnly,
			Store:            store,
		}
		if metrics != nil {
			opts.OnCacheHit, opts.OnCacheMiss = metrics.CacheObservers(e.Name)
		}
		g, err := respcache.New(opts)
		if err != nil {
			return nil, fmt.Errorf("origin %s: %w", e.Name, err)
		}

		client, err := origin.NewClient(e.Upstream, e.Prefix, transport, e.Timeout)
		if err != nil {
			return nil, fmt.Errorf("origin %s: %w", e.Name, err)
		}
		o := server.Origin{Prefix: e.Prefix, Gateway: g, Client: client}
		if bc.Enabled {
			o.Breaker = circuitbreaker.New(circuitbreaker.Config{
				ErrorThreshold: bc.ErrorThreshold,
				MinSamples:     bc.MinSamples,
				Window:         bc.Window,
				OpenTimeout:    bc.OpenTimeout,
			})
		}
		origins = append(origins, o)
		slog.Info("origin mounted", "name", e.Name, "prefix", e.Prefix, "upstream", e.Upstream)
	}
	return origins, nil
}

// scopeFunc maps the configured scope onto an auth function. Validate has
// already rejected unknown values.
func scopeFunc(e config.OriginEntry) respcache.AuthFunc {
	if name, ok := e.ScopeHeader(); ok {
		return auth.HeaderScope(name)
	}
	if e.Scope == "bearer" {
		return auth.BearerScope
	}
	return nil
}
