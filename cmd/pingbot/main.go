// Command pingbot is a small bot built on relay. It answers "!ping" and runs
// single-answer "!poll" questions by awaiting the first reaction.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bjaus/relay"
	"github.com/bjaus/relay/config"
	"github.com/bjaus/relay/gateway"
	"github.com/bjaus/relay/memcache"
	"github.com/bjaus/relay/observability"
	"github.com/bjaus/relay/rest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// resolveLogLevel picks the -log-level flag over the configured level.
// The config already carries RELAY_LOG_LEVEL.
func resolveLogLevel(flagLevel, configured string) slog.Level {
	if flagLevel != "" {
		return observability.ParseLogLevel(flagLevel)
	}
	return observability.ParseLogLevel(configured)
}

func run() error {
	configPath := flag.String("config", os.Getenv("RELAY_CONFIG"), "path to YAML config")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger("pingbot", resolveLogLevel(*logLevel, cfg.LogLevel))
	slog.SetDefault(logger)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	health := observability.NewHealthServer()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("GET /healthz", health.Handler())
	mux.Handle("GET /readyz", health.Handler())
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	api, err := rest.New(rest.Config{BaseURL: cfg.APIURL, Token: cfg.Token})
	if err != nil {
		return fmt.Errorf("rest client: %w", err)
	}
	api.SetLogger(logger)

	gw, err := gateway.New(gateway.Config{
		URL:     cfg.GatewayURL,
		Token:   cfg.Token,
		Intents: cfg.Intents,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("gateway client: %w", err)
	}

	registryOpts := append([]relay.RegistryOption{
		relay.WithDeliveryCapacity(cfg.Interceptors.Capacity),
		relay.WithActionBuffer(cfg.Interceptors.ActionBuffer),
		relay.WithSweepInterval(cfg.Interceptors.SweepInterval),
		relay.WithRegistryLogger(logger),
	}, metrics.RegistryOptions()...)
	registry := relay.NewRegistry(registryOpts...)

	state := &State{
		API:         api,
		Registry:    registry,
		PollTimeout: cfg.PollTimeout,
		Logger:      logger,
	}
	stackOpts := append([]relay.Option{relay.WithLogger(logger)}, metrics.StackOptions()...)
	stack := buildStack(state, memcache.New(), stackConfig{
		RunTimeout: cfg.RunTimeout,
		PerSecond:  cfg.RateLimit.PerSecond,
		Burst:      cfg.RateLimit.Burst,
	}, []relay.Middleware[*State]{observability.MarkReady[*State](health)}, stackOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := registry.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("registry: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gateway connecting", "url", cfg.GatewayURL)
		if err := gw.Run(gctx, stack.Handle); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		// The session ended without a signal; stop the rest of the group.
		cancel()
		return nil
	})

	runErr := g.Wait()
	stack.Wait()

	logger.Info("shutdown complete")
	return runErr
}
