package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Application
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"

	// Domain
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/service"

	// Infrastructure
	redisCache "github.com/dreschagin/pagespeed-monitor/internal/infrastructure/cache/redis"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/httpclient"
	natsMessaging "github.com/dreschagin/pagespeed-monitor/internal/infrastructure/messaging/nats"
	wsInfra "github.com/dreschagin/pagespeed-monitor/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/observability/prometheus"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/pagespeed"
	dynamodbRepo "github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/rest"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/sqlite"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/scheduler"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/solution/anthropic"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/solution/gemini"
	s3storage "github.com/dreschagin/pagespeed-monitor/internal/infrastructure/storage/s3"

	// Shared
	"github.com/dreschagin/pagespeed-monitor/pkg/config"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// resultStore объединяет репозитории выбранного драйвера хранилища
type resultStore struct {
	targets      repository.TargetRepository
	measurements repository.MeasurementRepository
	solutions    repository.SolutionRepository
	ping         func(ctx context.Context) error
	close        func() error
}

// application содержит собранный граф зависимостей процесса
type application struct {
	cfg *config.Config
	log *logger.Logger

	store       *resultStore
	cache       port.Cache
	events      port.EventPublisher
	hub         *wsInfra.Hub
	runMetrics  *prometheus.RunMetrics
	cwMetrics   *cloudwatch.MetricsPublisher
	coordinator *usecase.RunCoordinator

	closers []func(ctx context.Context)
}

// openStore подключает хранилище результатов по STORE_DRIVER
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*resultStore, error) {
	switch cfg.Database.Driver {
	case config.StoreDriverSQLite:
		store, err := sqlite.New(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("SQLite store opened", "path", cfg.Database.SQLitePath)
		return &resultStore{
			targets:      store.Targets(),
			measurements: store.Measurements(),
			solutions:    store.Solutions(),
			ping:         store.Ping,
			close:        store.Close,
		}, nil

	case config.StoreDriverREST:
		client := rest.NewClient(cfg.Database.DataAPIURL, cfg.Database.DataAPIKey, httpclient.New(httpclient.Options{
			Timeout: cfg.Database.DataAPITimeout,
		}, log))
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach data API: %w", err)
		}
		log.Info("Data API connected", "url", cfg.Database.DataAPIURL)
		return &resultStore{
			targets:      rest.NewTargetRepository(client),
			measurements: rest.NewMeasurementRepository(client),
			solutions:    rest.NewSolutionRepository(client),
			ping:         client.Ping,
			close:        func() error { return nil },
		}, nil

	default:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("Database connected successfully", "host", cfg.Database.Host, "database", cfg.Database.Database)
		return &resultStore{
			targets:      postgres.NewPostgresTargetRepository(db),
			measurements: postgres.NewPostgresMeasurementRepository(db),
			solutions:    postgres.NewPostgresSolutionRepository(db),
			ping:         db.PingContext,
			close:        db.Close,
		}, nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return postgres.Open(ctx, cfg.Database.DSN(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
}

// newApplication собирает хранилище, адаптеры и координатор запусков.
// Необязательные адаптеры подключаются только при включенных флагах конфигурации.
// withHub запускает websocket hub для процесса serve.
func newApplication(ctx context.Context, cfg *config.Config, log *logger.Logger, withHub bool) (*application, error) {
	app := &application{cfg: cfg, log: log}

	// 1. Хранилище результатов
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.closers = append(app.closers, func(context.Context) {
		if err := store.close(); err != nil {
			log.Warn("Failed to close store", "error", err.Error())
		}
	})

	if err := app.connectAdapters(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if withHub {
		app.hub = wsInfra.NewHub(log)
		go app.hub.Run()
		app.closers = append(app.closers, func(context.Context) { app.hub.Stop() })
	}

	// 2. Prober
	prober, err := pagespeed.NewProber(ctx, pagespeed.Config{
		APIKey:   cfg.PageSpeed.APIKey,
		Timeout:  cfg.PageSpeed.Timeout,
		Endpoint: cfg.PageSpeed.Endpoint,
	}, log)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if cfg.PageSpeed.APIKey == "" {
		log.Warn("PAGESPEED_API_KEY is not set, every probe will fail")
	}

	// 3. Batch Runner и Run Coordinator
	effects := usecase.BatchSideEffects{
		Events: app.events,
		Stats:  app.runMetrics,
	}
	if app.hub != nil {
		effects.Notifier = app.hub
	}
	if app.cwMetrics != nil {
		effects.Metrics = app.cwMetrics
	}

	var archive *s3storage.ReportArchive
	if cfg.S3.Enabled {
		archive, err = s3storage.NewReportArchive(ctx, s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			URLMode:         s3storage.URLMode(cfg.S3.URLMode),
			PresignedTTL:    cfg.S3.PresignedTTL,
			Compress:        cfg.S3.Compress,
		})
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		effects.Archive = archive
		log.Info("Report archive enabled", "bucket", cfg.S3.Bucket)
	}

	runner := usecase.NewBatchRunner(prober, store.measurements, effects, usecase.BatchRunnerConfig{
		Delay:           cfg.Measurement.Delay,
		ReportPrefix:    cfg.S3.KeyPrefix,
		DisplayLocation: cfg.DisplayLocation(),
	}, log)

	runEffects := usecase.RunCoordinatorEffects{
		Cache:  app.cache,
		Events: app.events,
		Stats:  app.runMetrics,
	}
	if app.hub != nil {
		runEffects.Notifier = app.hub
	}
	if cfg.Dynamo.Enabled {
		history, err := dynamodbRepo.NewRunHistoryRepository(ctx, dynamodbRepo.Config{
			TableName:       cfg.Dynamo.TableRunHistory,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			StrongReads:     cfg.Dynamo.StrongReads,
		})
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		runEffects.History = history
		log.Info("Run history stored in DynamoDB", "table", cfg.Dynamo.TableRunHistory)
	}

	app.coordinator = usecase.NewRunCoordinator(store.targets, runner, runEffects, usecase.RunCoordinatorConfig{
		Watchdog:        cfg.Measurement.Watchdog,
		DisplayLocation: cfg.DisplayLocation(),
	}, log)

	return app, nil
}

// connectAdapters подключает кэш, брокер, websocket hub и метрики
func (a *application) connectAdapters(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	a.runMetrics = prometheus.NewRunMetrics()

	if cfg.Redis.Enabled {
		cache, err := redisCache.NewRedisCache(redisCache.Options{
			Addr:         cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			TTL:          cfg.Redis.TTL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			// Без кэша сервис продолжает работать напрямую с хранилищем
			log.Warn("Redis is unavailable, caching disabled", "error", err.Error())
		} else {
			a.cache = cache
			a.closers = append(a.closers, func(context.Context) { _ = cache.Close() })
			log.Info("Redis cache connected", "addr", cfg.Redis.Host+":"+cfg.Redis.Port)
		}
	}

	if cfg.NATS.Enabled {
		publisher, err := natsMessaging.NewNATSPublisher(cfg.NATS.URL, log)
		if err != nil {
			log.Warn("NATS is unavailable, run events disabled", "error", err.Error())
		} else {
			a.events = publisher
			a.closers = append(a.closers, func(context.Context) { _ = publisher.Close() })
		}
	}

	if cfg.CloudWatch.MetricsEnabled {
		publisher, err := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			Namespace:         cfg.CloudWatch.MetricsNamespace,
			Region:            cfg.CloudWatch.Region,
			Endpoint:          cfg.CloudWatch.Endpoint,
			AccessKeyID:       cfg.CloudWatch.AccessKeyID,
			SecretAccessKey:   cfg.CloudWatch.SecretAccessKey,
			DefaultDimensions: cfg.CloudWatch.MetricsDimensions,
			BufferSize:        cfg.CloudWatch.MetricsBufferSize,
			FlushInterval:     cfg.CloudWatch.MetricsFlushInterval,
			StorageResolution: cfg.CloudWatch.MetricsStorageResolution,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize CloudWatch metrics: %w", err)
		}
		a.cwMetrics = publisher
		a.closers = append(a.closers, func(ctx context.Context) {
			if err := publisher.Close(ctx); err != nil {
				log.Warn("Failed to flush CloudWatch metrics", "error", err.Error())
			}
		})
	}

	if cfg.CloudWatch.LogsEnabled {
		publisher, err := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cfg.CloudWatch.LogGroupName,
			LogStreamName:   cfg.CloudWatch.LogStreamName,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			BufferSize:      cfg.CloudWatch.LogsBufferSize,
			FlushInterval:   cfg.CloudWatch.LogsFlushInterval,
			AutoCreate:      true,
			Service:         "pagespeed-monitor",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize CloudWatch logs: %w", err)
		}
		log.SetLogPublisher(publisher)
		a.closers = append(a.closers, func(ctx context.Context) {
			log.SetLogPublisher(nil)
			_ = publisher.Close(ctx)
		})
	}

	return nil
}

// newScheduler создает cron планировщик и подключает его проекцию к координатору
func (a *application) newScheduler() (*scheduler.CronScheduler, error) {
	cron, err := scheduler.NewCronScheduler(
		a.cfg.Measurement.ScheduleCron,
		a.cfg.DisplayLocation(),
		a.coordinator,
		a.log,
	)
	if err != nil {
		return nil, err
	}
	a.coordinator.SetNextRunFunc(cron.NextRun)
	return cron, nil
}

// newSolutionGenerator возвращает nil, если провайдер отключен или не настроен
func (a *application) newSolutionGenerator() port.SolutionGenerator {
	cfg, log := a.cfg.Solution, a.log

	switch cfg.Provider {
	case config.SolutionProviderGemini:
		if cfg.GeminiAPIKey == "" {
			log.Warn("GEMINI_API_KEY is not set, solution generation disabled")
			return nil
		}
		generator, err := gemini.NewGenerator(gemini.Config{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			Endpoint:        cfg.GeminiEndpoint,
			Timeout:         cfg.Timeout,
			MaxOutputTokens: cfg.MaxOutputTokens,
		}, httpclient.New(httpclient.Options{Timeout: cfg.Timeout}, log))
		if err != nil {
			log.Warn("Failed to initialize Gemini generator", "error", err.Error())
			return nil
		}
		return generator

	case config.SolutionProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			log.Warn("ANTHROPIC_API_KEY is not set, solution generation disabled")
			return nil
		}
		generator, err := anthropic.NewGenerator(anthropic.Config{
			APIKey:          cfg.AnthropicAPIKey,
			Model:           cfg.AnthropicModel,
			Timeout:         cfg.Timeout,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
		if err != nil {
			log.Warn("Failed to initialize Anthropic generator", "error", err.Error())
			return nil
		}
		return generator
	}

	return nil
}

// readUseCases собирает use cases чтения поверх выбранного хранилища
type readUseCases struct {
	stats    *usecase.GetStatsUseCase
	list     *usecase.ListMeasurementsUseCase
	purge    *usecase.PurgeMeasurementsUseCase
	report   *usecase.ImprovementReportUseCase
	solution *usecase.GenerateSolutionUseCase
	targets  *usecase.ManageTargetsUseCase
}

func (a *application) newReadUseCases() readUseCases {
	store, log := a.store, a.log

	return readUseCases{
		stats: usecase.NewGetStatsUseCase(store.measurements, store.targets, a.cache, log),
		list:  usecase.NewListMeasurementsUseCase(store.measurements, a.cfg.DisplayLocation(), log),
		purge: usecase.NewPurgeMeasurementsUseCase(store.measurements, a.cache, log),
		report: usecase.NewImprovementReportUseCase(
			store.measurements,
			store.solutions,
			service.NewImprovementAggregator(),
			a.cache,
			usecase.ImprovementReportConfig{Days: a.cfg.Report.Days, Limit: a.cfg.Report.Limit},
			log,
		),
		solution: usecase.NewGenerateSolutionUseCase(a.newSolutionGenerator(), store.solutions, a.cache, log),
		targets:  usecase.NewManageTargetsUseCase(store.targets, a.cache, log),
	}
}

// Close останавливает координатор и освобождает ресурсы в обратном порядке
func (a *application) Close(ctx context.Context) {
	if a.coordinator != nil {
		if err := a.coordinator.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("Run coordinator did not stop in time", "error", err.Error())
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}
