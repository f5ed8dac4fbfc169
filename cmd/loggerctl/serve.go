package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loggerctl/config"
	"loggerctl/handlers"
	"loggerctl/logging"
	"loggerctl/metrics"
	"loggerctl/redis"
	"loggerctl/services"
)

func serve(opts *options, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return withExitCode(exitError, err)
	}
	logger := logging.New(stderr, firstNonEmpty(opts.logLevel, cfg.LogLevel), firstNonEmpty(opts.logFormat, logging.FormatJSON))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var svcOpts []services.ServiceOption
	if cfg.RedisEnabled() {
		store, err := redis.NewLeaseStore(ctx, cfg, logger)
		if err != nil {
			return withExitCode(exitError, err)
		}
		defer store.Close()
		svcOpts = append(svcOpts, services.WithLeaseStore(services.RedisLeases(store)))
	}

	metrics.Init()
	svc := services.NewControlService(cfg, logger, svcOpts...)
	router := handlers.NewRouter(handlers.NewAPIHandler(svc, logger), logger)

	addr := firstNonEmpty(opts.addr, cfg.HTTPAddr)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 330 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return withExitCode(exitError, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.Any("error", err))
	}
	logger.Info("Server stopped")
	return nil
}
