package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/MegaGrindStone/go-jsonrpc"
	"github.com/MegaGrindStone/go-jsonrpc/internal/config"
)

const readHeaderTimeout = 15 * time.Second

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the enabled capabilities until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringP("network", "n", "", "Network to serve on: stdio, tcp, unix or sse")
	flags.StringP("address", "a", "", "Address to listen on: host:port, or a socket path for unix")
	flags.String("base-url", "", "Externally visible URL of the sse endpoints")
	flags.Duration("invocation-timeout", 0, "Bound on each capability invocation, 0 for none")
	flags.Duration("shutdown-timeout", 0, "Bound on the graceful shutdown")
	flags.String("metrics-address", "", "Address serving Prometheus metrics, empty to disable")
	a.bind(flags, map[string]string{
		"network":            "listen.network",
		"address":            "listen.address",
		"base-url":           "sse.base_url",
		"invocation-timeout": "server.invocation_timeout",
		"shutdown-timeout":   "server.shutdown_timeout",
		"metrics-address":    "metrics.address",
	})
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger, err := a.load()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := jsonrpc.NewMetrics(reg)

	var (
		transport   jsonrpc.ServerTransport
		httpServers []*http.Server
	)
	switch cfg.Listen.Network {
	case config.NetworkStdio:
		transport = jsonrpc.NewStdIO(a.stdin, a.stdout, jsonrpc.WithStreamLogger(logger))
	case config.NetworkTCP, config.NetworkUnix:
		l, err := jsonrpc.Listen(cfg.Listen.Network, cfg.Listen.Address, jsonrpc.WithNetListenerLogger(logger))
		if err != nil {
			return err
		}
		logger.Info("listening", slog.String("network", cfg.Listen.Network), slog.String("address", l.Addr().String()))
		transport = l
	case config.NetworkSSE:
		msgURL, err := messageURL(cfg)
		if err != nil {
			return err
		}
		sse := jsonrpc.NewSSEServer(msgURL,
			jsonrpc.WithSSEServerLogger(logger),
			jsonrpc.WithSSEServerMaxMessageSize(cfg.SSE.MaxMessageSize))
		transport = sse

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Method(http.MethodGet, cfg.SSE.EventsPath, sse.HandleSSE())
		r.Method(http.MethodPost, cfg.SSE.MessagePath, sse.HandleMessage())
		httpServers = append(httpServers, &http.Server{
			Addr:              cfg.Listen.Address,
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
		})
		logger.Info("serving sse",
			slog.String("address", cfg.Listen.Address),
			slog.String("events", cfg.SSE.EventsPath),
			slog.String("messages", msgURL))
	}

	if cfg.Metrics.Address != "" {
		r := chi.NewRouter()
		r.Method(http.MethodGet, cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpServers = append(httpServers, &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
		})
		logger.Info("serving metrics", slog.String("address", cfg.Metrics.Address), slog.String("path", cfg.Metrics.Path))
	}

	srv := jsonrpc.NewServer(registry, transport,
		jsonrpc.WithServerLogger(logger),
		jsonrpc.WithServerMetrics(metrics),
		jsonrpc.WithServerInvocationTimeout(cfg.Server.InvocationTimeout),
	)

	served := make(chan struct{})
	go func() {
		defer close(served)
		srv.Serve()
	}()

	httpErrs := make(chan error, len(httpServers))
	for _, hs := range httpServers {
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErrs <- fmt.Errorf("failed to serve http on %s: %w", hs.Addr, err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-served:
		logger.Info("transport closed")
	case serveErr = <-httpErrs:
		logger.Error("http server failed", slog.String("err", serveErr.Error()))
	}

	shutdownCtx := context.Background()
	if cfg.Server.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, cfg.Server.ShutdownTimeout)
		defer cancel()
	}

	errs := []error{serveErr}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
	}
	for _, hs := range httpServers {
		if err := hs.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown http server on %s: %w", hs.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// messageURL returns the URL clients POST their messages to. Without a configured base URL it is
// derived from the listen address, with unspecified hosts replaced by localhost.
func messageURL(cfg config.Config) (string, error) {
	base := cfg.SSE.BaseURL
	if base == "" {
		host, port, err := net.SplitHostPort(cfg.Listen.Address)
		if err != nil {
			return "", fmt.Errorf("failed to derive base url from %q: %w", cfg.Listen.Address, err)
		}
		if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
			host = "localhost"
		}
		base = "http://" + net.JoinHostPort(host, port)
	}
	return strings.TrimSuffix(base, "/") + cfg.SSE.MessagePath, nil
}
