// Intent Echo — пример intent-сервиса.
//
// Сервис:
//   - Объявляет router_exchange и собственные <Name>Exchange / <Name>Queue
//   - Регистрирует маршруты через add_route
//   - Возвращает поле data входящих сообщений обратно в router
//
// Конфигурация — переменные окружения (см. internal/config).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/sharedintent/internal/config"
	"github.com/shaiso/sharedintent/internal/echo"
	"github.com/shaiso/sharedintent/internal/mq"
	"github.com/shaiso/sharedintent/internal/repo"
	"github.com/shaiso/sharedintent/internal/service"
	"github.com/shaiso/sharedintent/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "Echo"
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting intent-echo", "service", cfg.ServiceName)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Аудит (опционально)
	var recorder service.Recorder
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		deliveryRepo := repo.NewDeliveryRepo(pool)
		if err := deliveryRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare audit schema", "error", err)
			os.Exit(1)
		}
		recorder = deliveryRepo
		logger.Info("delivery audit enabled")
	}

	conn := mq.NewConnection(cfg.Broker, logger, metrics)

	svc, err := service.New(service.Config{
		Name:               cfg.ServiceName,
		Handler:            echo.New(),
		Routes:             echo.Routes(),
		Broker:             conn,
		DeadLetterExchange: mq.Exchange(cfg.DeadLetterExchange),
		Prefetch:           cfg.Prefetch,
		Metrics:            metrics,
		Recorder:           recorder,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !svc.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	runErr := svc.Run(ctx)

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	if runErr != nil {
		logger.Error("intent-echo failed", "error", runErr)
		os.Exit(1)
	}

	logger.Info("intent-echo stopped")
}
