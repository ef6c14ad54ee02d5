package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/trackstackhq/trackstack/pkg/api"
	"github.com/trackstackhq/trackstack/pkg/audit"
	"github.com/trackstackhq/trackstack/pkg/auth"
	"github.com/trackstackhq/trackstack/pkg/config"
	"github.com/trackstackhq/trackstack/pkg/middleware"
	"github.com/trackstackhq/trackstack/pkg/observability"
	"github.com/trackstackhq/trackstack/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.InfoLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer store.Close()
	logger.WithField("driver", string(cfg.Storage.Driver)).Info("database ready")

	recorder := audit.NewRecorder(store, logger, metrics)
	security := audit.NewSecurityLogger(os.Stderr, metrics)

	tokens, err := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.WithError(err).Error("failed to initialize token service")
		os.Exit(1)
	}

	svc, err := auth.NewService(store, tokens,
		auth.WithMasterCredentials(cfg.Auth.MasterKey, cfg.Auth.CompanyCode),
		auth.WithSecurityLogger(security),
	)
	if err != nil {
		logger.WithError(err).Error("failed to initialize auth service")
		os.Exit(1)
	}

	limiter := middleware.NewRateLimiter(cfg.Auth.LoginRatePerSecond, cfg.Auth.LoginRateBurst)
	server := api.NewServer(svc, recorder, logger, store, store, api.Options{
		Metrics:      metrics,
		LoginLimiter: limiter,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	case sig := <-stop:
		logger.WithField("signal", sig.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("shutdown incomplete")
			os.Exit(1)
		}
	}
	logger.Info("server stopped")
}
