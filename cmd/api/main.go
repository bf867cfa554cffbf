package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/app"
	"github.com/valtp/saas-platform/panel-service/internal/client"
	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/http"
	"github.com/valtp/saas-platform/panel-service/internal/logging"
	"github.com/valtp/saas-platform/panel-service/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := logging.InitLogger(cfg.Log.Level); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logger := logging.Logger()
	defer logging.Sync() //nolint:errcheck

	logger.Info("starting panel service", zap.String("port", cfg.Server.Port))

	ctx := context.Background()

	// Initialize storage
	stores, err := app.OpenStores(ctx, &cfg.Database, logger.Named("db"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer stores.Close()

	// Initialize clients
	remotes := client.NewFactory(client.Options{
		Timeout:     cfg.Pterodactyl.Timeout,
		ReadRetries: cfg.Pterodactyl.ReadRetries,
		Logger:      logger.Named("pterodactyl"),
	})

	// Initialize services
	directory := service.NewDirectory(stores.Instances, cfg.Directory.CacheTTL, logger.Named("directory"))
	defer directory.Close()

	quota := service.NewQuotaService(cfg.Quota, directory, stores.Panels, stores.Profiles, logger.Named("quota"))

	services := http.Services{
		Provisioner: service.NewProvisioner(
			cfg.Pterodactyl,
			directory,
			stores.Panels,
			stores.Profiles,
			stores.Logs,
			remotes,
			logger.Named("provision"),
		),
		Deprovisioner: service.NewDeprovisioner(stores.Panels, stores.Logs, remotes, logger.Named("deprovision")),
		Quota:         quota,
		Accounts:      service.NewAccountService(quota, stores.Instances, stores.Panels, stores.Profiles, logger.Named("account")),
		Admin:         service.NewAdminService(stores.Instances, stores.Panels, stores.Profiles, stores.Logs, directory, logger.Named("admin")),
		Reconciler:    service.NewReconciler(stores.Instances, stores.Panels, remotes, cfg.Reconcile.Workers, logger.Named("reconcile")),
	}

	// Initialize HTTP server
	server := http.NewServer(cfg, services, logger.Named("http"))
	defer server.Close()

	srv := &nethttp.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	logger.Info("server exited")
}
