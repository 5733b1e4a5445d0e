// Atelier Orchestrator — распределяет задачи генерации по пулу GPU-воркеров.
//
// Orchestrator:
//   - Принимает задачи через HTTP API и очередь generation.requests
//   - Опрашивает воркеры и выбирает свободный по стратегии
//   - Считает пропускную способность и публикует события
//   - Архивирует завершённые задачи в PostgreSQL (если задан DB_URL)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Atelier/internal/api"
	"github.com/shaiso/Atelier/internal/config"
	"github.com/shaiso/Atelier/internal/dispatcher"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/health"
	"github.com/shaiso/Atelier/internal/mq"
	"github.com/shaiso/Atelier/internal/observer"
	"github.com/shaiso/Atelier/internal/repo"
	"github.com/shaiso/Atelier/internal/stats"
	"github.com/shaiso/Atelier/internal/telemetry"
	"github.com/shaiso/Atelier/internal/transport"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting atelier-orchestrator")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Уведомления: hub раздаёт их метрикам, SSE, архиву и RabbitMQ
	hub := observer.NewHub(observer.HubConfig{Logger: logger})
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	hub.Subscribe(metrics)

	events := api.NewEventStream(0, logger)
	hub.Subscribe(events)

	aggregator, err := stats.New(stats.Config{
		Window:   cfg.StatsWindow,
		Cadence:  cfg.StatsCadence,
		Observer: hub,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create stats aggregator", "error", err)
		os.Exit(1)
	}

	adapters := transport.DefaultRegistry(nil)
	d, err := dispatcher.New(dispatcher.Config{
		Adapters:     adapters,
		Strategy:     cfg.Strategy,
		Estimator:    dispatcher.BaseEstimator{ImageUnits: cfg.ImageUnits, VideoUnits: cfg.VideoUnits},
		Events:       aggregator,
		Observer:     hub,
		CancelGrace:  cfg.CancelGrace,
		TaskTimeout:  cfg.TaskTimeout,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	monitor := health.New(health.Config{
		Target:          d,
		Adapters:        adapters,
		Interval:        cfg.ProbeInterval,
		Timeout:         cfg.ProbeTimeout,
		StalenessWindow: cfg.StalenessWindow,
		Logger:          logger,
	})

	hub.Start(ctx)
	if err := aggregator.Start(ctx); err != nil {
		logger.Error("failed to start stats aggregator", "error", err)
		os.Exit(1)
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	handlerCfg := api.Config{
		Orchestrator: d,
		Stats:        aggregator,
		Prober:       monitor,
		Events:       events,
		Metrics:      metrics,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
	}

	// PostgreSQL: каталог воркеров и архив задач
	if cfg.DBURL != "" {
		pool, err := repo.Connect(ctx, cfg.DBURL)
		if err != nil {
			logger.Warn("database not available, running without archive", "error", err)
		} else {
			defer pool.Close()
			logger.Info("database connected")

			if err := repo.Migrate(ctx, pool); err != nil {
				logger.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}

			taskRepo := repo.NewTaskRepo(pool)
			workerRepo := repo.NewWorkerRepo(pool)
			hub.Subscribe(repo.NewTaskArchive(taskRepo, 0, logger))
			handlerCfg.Archive = taskRepo
			handlerCfg.Catalog = workerRepo

			catalog, err := workerRepo.ListEnabled(ctx)
			if err != nil {
				logger.Warn("failed to load worker catalog", "error", err)
			}
			registerWorkers(ctx, d, catalog, logger)
		}
	}

	if cfg.WorkersFile != "" {
		workers, err := config.LoadWorkers(cfg.WorkersFile)
		if err != nil {
			logger.Error("failed to load workers file", "error", err)
			os.Exit(1)
		}
		registerWorkers(ctx, d, workers, logger)
	}

	if err := monitor.Start(ctx); err != nil {
		logger.Error("failed to start health monitor", "error", err)
		os.Exit(1)
	}

	// RabbitMQ: заявки generation.requests и события atelier.events
	var consumer *mq.Consumer
	if cfg.RabbitMQURL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running with HTTP intake only", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}

			publisher := mq.NewPublisher(mqConn, logger)
			correlator := mq.NewCorrelator()
			hub.Subscribe(mq.NewEventPublisher(mq.EventPublisherConfig{
				Sender:     publisher,
				Correlator: correlator,
				Logger:     logger,
			}))

			intake := mq.NewRequestConsumer(mq.RequestConsumerConfig{
				Submitter:  d,
				Sender:     publisher,
				Correlator: correlator,
				Logger:     logger,
			})
			consumer = mq.NewConsumer(mqConn, mq.ConsumerConfig{
				Queue:   mq.QueueGenerationRequests,
				Handler: intake.Handle,
				Logger:  logger,
			})
			go func() {
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("generation request consumer stopped", "error", err)
				}
			}()
		}
	}

	// HTTP mux: API + /metrics
	mux := http.NewServeMux()
	api.NewHandler(handlerCfg).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	if consumer != nil {
		consumer.Stop()
	}
	monitor.Stop()
	d.Stop()
	aggregator.Stop()
	hub.Stop()
	logger.Info("atelier-orchestrator stopped")
}

// registerWorkers регистрирует воркеры; уже известные пропускаются.
func registerWorkers(ctx context.Context, d *dispatcher.Dispatcher, workers []domain.Worker, logger *slog.Logger) {
	for _, w := range workers {
		if _, err := d.Register(ctx, w); err != nil {
			logger.Warn("failed to register worker", "worker_id", w.ID, "error", err)
			continue
		}
		logger.Info("worker registered", "worker_id", w.ID, "kind", w.Kind, "endpoint", w.Endpoint)
	}
}
