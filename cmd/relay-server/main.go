//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/touka-aoi/low-level-relay/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse flags
	var (
		host        = flag.String("host", server.DefaultAddress, "Host to listen on")
		port        = flag.Int("port", server.DefaultPort, "Port to listen on")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (disabled when empty)")
	)
	flag.Parse()

	// Setup logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	config := server.DefaultConfig("tcp")
	config.Address = *host
	config.Port = *port
	relayServer := server.NewRelayServer(config, server.WithMetrics(server.NewMetrics(reg, config.Protocol)))

	if err := relayServer.Listen(ctx); err != nil {
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relayServer.Serve(gctx)
	})
	if *metricsAddr != "" {
		serveMetrics(gctx, g, *metricsAddr, reg)
	}

	if err := g.Wait(); err != nil {
		slog.Error("Relay server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Relay server stopped")
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slog.Info("Metrics listening on", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
