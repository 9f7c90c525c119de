package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// Interfaces
	httpInterface "github.com/dreschagin/pagespeed-monitor/internal/interfaces/http"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/handler"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the websocket hub, the status page and the cron scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// 1. Загружаем конфигурацию и инициализируем logger
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	log.Info("Starting PageSpeed Monitor", "store", string(cfg.Database.Driver), "port", cfg.Server.Port)

	// 2. Собираем хранилище, адаптеры и координатор
	app, err := newApplication(ctx, cfg, log, true)
	if err != nil {
		log.Error("Failed to initialize application", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		app.Close(shutdownCtx)
	}()

	// 3. Планировщик запусков
	if cfg.Measurement.ScheduleEnabled {
		cron, err := app.newScheduler()
		if err != nil {
			log.Error("Failed to create scheduler", err)
			return err
		}
		if err := cron.Start(ctx); err != nil {
			log.Error("Failed to start scheduler", err)
			return err
		}
		defer cron.Stop()
	} else {
		log.Info("Scheduled measurements are disabled")
	}

	// 4. Use cases и HTTP handlers
	reads := app.newReadUseCases()
	location := cfg.DisplayLocation()
	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}

	router := httpInterface.NewRouter(
		httpInterface.Handlers{
			Dashboard: handler.NewDashboardHandler(app.coordinator, reads.stats, reads.list, location, log),
			WebSocket: handler.NewWebSocketHandler(app.hub, app.coordinator, cfg.Security.AllowedOrigins, authConfig, log),
			Runs:      handler.NewRunAPIHandler(app.coordinator, log),
			Reports: handler.NewReportAPIHandler(
				reads.stats,
				reads.list,
				reads.purge,
				reads.report,
				reads.solution,
				log,
			),
			Targets: handler.NewTargetAPIHandler(reads.targets, log),
			Auth:    handler.NewAuthAPIHandler(authConfig, log),
			Metrics: app.runMetrics.Handler(),
		},
		app.store.ping,
		cfg.Security,
		log,
	)
	defer router.Close()

	// 5. HTTP сервер
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErrors:
		log.Error("HTTP server failed", err)
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info("Shutting down server...", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err)
		return err
	}

	log.Info("Server exited")
	return nil
}
