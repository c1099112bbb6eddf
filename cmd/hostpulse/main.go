package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rxtx-hosting/hostpulse/internal/config"
	"github.com/rxtx-hosting/hostpulse/pkg/clientip"
	"github.com/rxtx-hosting/hostpulse/pkg/exporter"
	"github.com/rxtx-hosting/hostpulse/pkg/history"
	"github.com/rxtx-hosting/hostpulse/pkg/limiter"
	"github.com/rxtx-hosting/hostpulse/pkg/netinfo"
	"github.com/rxtx-hosting/hostpulse/pkg/sampler"
	"github.com/rxtx-hosting/hostpulse/pkg/stats"
)

var (
	configPath = flag.String("config", "/etc/hostpulse/config.yaml", "Path to configuration file")
	portFlag   = flag.Int("port", 0, "Port to listen on (overrides config and PORT)")
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := config.Load(*configPath, bootLogger)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnv(os.LookupEnv, bootLogger)
	if *portFlag > 0 {
		cfg.Server.Port = *portFlag
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Server.LogLevel),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Starting HostPulse",
		"addr", cfg.ListenAddr(),
		"rateLimit", cfg.Server.EnableRateLimit,
		"updateInterval", cfg.Stats.UpdateInterval,
		"historyLength", cfg.Stats.MaxHistoryLength)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := history.NewBuffer(cfg.Stats.MaxHistoryLength)
	slog.Info("History window", "span", buf.Span(cfg.Stats.UpdateInterval))

	cacheOpts := []stats.Option{stats.WithLogger(logger)}
	if cfg.Stats.NetworkInterfaces {
		cacheOpts = append(cacheOpts, stats.WithNetwork(netinfo.NewReader()))
	}
	var promExporter *exporter.PrometheusExporter
	if cfg.Server.MetricsAddr != "" {
		promExporter = exporter.NewPrometheusExporter()
		cacheOpts = append(cacheOpts, stats.WithOnRefresh(promExporter.UpdateStats))
	}
	statsCache := stats.NewCache(sampler.New(logger), buf, cfg.Stats.UpdateInterval, cacheOpts...)

	// Seed the CPU baseline so the first served snapshot can carry a figure.
	statsCache.Refresh()

	counter := limiter.NewCounter()
	deps := exporter.Deps{
		Resolver: clientip.NewResolver(clientip.Options{
			TrustForwardHeader: cfg.ClientIP.TrustForwardHeader,
			CountFromStart:     cfg.ClientIP.CountFromStart,
			Index:              cfg.ClientIP.ForwardHeaderIndex,
		}, logger),
		Counter: counter,
		Stats:   statsCache,
	}
	if cfg.Server.EnableRateLimit {
		deps.Limiter = limiter.NewRateLimiter(cfg.MinRequestSpacing())
	}

	var wg sync.WaitGroup
	if promExporter != nil {
		deps.Observer = promExporter
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("Starting Prometheus server", "address", cfg.Server.MetricsAddr)
			if err := promExporter.StartServer(ctx, cfg.Server.MetricsAddr); err != nil {
				log.Fatalf("Failed to start Prometheus server: %v", err)
			}
		}()
	}

	apiServer := exporter.NewAPIServer(deps, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Starting API server", "address", cfg.ListenAddr())
		if err := apiServer.StartServer(ctx, cfg.ListenAddr()); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	refreshTicker := time.NewTicker(cfg.Stats.UpdateInterval)
	defer refreshTicker.Stop()

	resetTicker := time.NewTicker(cfg.Stats.CountResetPeriod)
	defer resetTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("HostPulse started successfully")

	for {
		select {
		case <-sigCh:
			slog.Info("Received shutdown signal, cleaning up...")
			cancel()
			wg.Wait()
			return

		case <-refreshTicker.C:
			statsCache.Refresh()

		case <-resetTicker.C:
			slog.Info("Resetting request counts", "clients", counter.Len())
			counter.Reset()
		}
	}
}
