package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/collector"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the cron scheduler only, with health, readiness and status endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(parent context.Context) error {
	// 1. Загружаем конфигурацию и инициализируем logger
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	log.Info("Starting measurement worker", "store", string(cfg.Database.Driver), "port", cfg.Server.WorkerPort)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Собираем хранилище, адаптеры и координатор без websocket hub
	app, err := newApplication(ctx, cfg, log, false)
	if err != nil {
		log.Error("Failed to initialize application", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		app.Close(shutdownCtx)
	}()

	// 3. Планировщик нужен worker всегда, независимо от SCHEDULE_ENABLED
	cron, err := app.newScheduler()
	if err != nil {
		log.Error("Failed to create scheduler", err)
		return err
	}

	w := worker.New(cron, app.coordinator, app.store.ping, log)
	w.SetHostSampler(collector.NewHostCollector("/"))
	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.WorkerPort,
		Handler:      worker.NewHandler(w, authConfig).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Worker health server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	// 4. Worker блокируется до сигнала остановки
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	select {
	case err := <-serverErrors:
		stop()
		<-runErr
		log.Error("Worker health server failed", err)
		return fmt.Errorf("worker http server: %w", err)
	case err := <-runErr:
		if err != nil {
			log.Error("Worker stopped with error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Worker health server forced to shutdown", err)
		return err
	}

	log.Info("Worker exited")
	return nil
}
