package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/sharedintent/internal/domain"
	"github.com/shaiso/sharedintent/internal/intent"
	"github.com/shaiso/sharedintent/internal/mq"
	"github.com/shaiso/sharedintent/internal/telemetry"
)

// Ошибки конфигурации сервиса.
var (
	// ErrNoName — не задано имя сервиса.
	ErrNoName = errors.New("service name is required")

	// ErrNoBroker — не задано соединение с брокером.
	ErrNoBroker = errors.New("broker is required")
)

// Broker — соединение с RabbitMQ. Реализуется *mq.Connection.
type Broker interface {
	Connect(ctx context.Context) error
	Channel() (mq.Channel, error)
	IsConnected() bool
	Close() error
}

var _ Broker = (*mq.Connection)(nil)

// Recorder сохраняет аудит обработанных сообщений. Реализуется *repo.DeliveryRepo.
type Recorder interface {
	Create(ctx context.Context, d *domain.Delivery) error
}

// Config — конфигурация Service.
type Config struct {
	// Name — имя сервиса. Определяет NameExchange и NameQueue.
	Name string

	// Handler — бизнес-логика сервиса.
	Handler intent.Handler

	// Routes — маршруты, объявляемые при старте.
	Routes []intent.Route

	// Broker — соединение с RabbitMQ.
	Broker Broker

	// DeadLetterExchange — опциональный DLX для собственной очереди.
	DeadLetterExchange mq.Exchange

	// Prefetch — prefetch consumer'а (default: 1).
	Prefetch int

	// Metrics — опциональные метрики.
	Metrics *telemetry.Metrics

	// Recorder — опциональный аудит.
	Recorder Recorder

	// Logger
	Logger *slog.Logger
}

// Service — intent-сервис.
//
// Run подключается к брокеру, объявляет топологию, начинает потреблять
// собственную очередь, регистрирует маршруты и ждёт отмены ctx.
type Service struct {
	name     string
	handler  intent.Handler
	routes   []intent.Route
	broker   Broker
	dlx      mq.Exchange
	prefetch int
	metrics  *telemetry.Metrics
	recorder Recorder
	logger   *slog.Logger

	ready atomic.Bool
}

// New создаёт Service. Отсутствие handler'а — ошибка конфигурации.
func New(cfg Config) (*Service, error) {
	if cfg.Name == "" {
		return nil, ErrNoName
	}
	if cfg.Handler == nil {
		return nil, intent.ErrNoHandler
	}
	if cfg.Broker == nil {
		return nil, ErrNoBroker
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		name:     cfg.Name,
		handler:  cfg.Handler,
		routes:   append([]intent.Route(nil), cfg.Routes...),
		broker:   cfg.Broker,
		dlx:      cfg.DeadLetterExchange,
		prefetch: cfg.Prefetch,
		metrics:  cfg.Metrics,
		recorder: cfg.Recorder,
		logger:   telemetry.WithService(logger, cfg.Name),
	}, nil
}

// Name возвращает имя сервиса.
func (s *Service) Name() string {
	return s.name
}

// Healthy возвращает true, пока сервис обслуживает очередь
// и соединение с брокером открыто.
func (s *Service) Healthy() bool {
	return s.ready.Load() && s.broker.IsConnected()
}

// Run запускает сервис и блокируется до отмены ctx.
//
// При отмене ctx новые сообщения не принимаются, текущее сообщение
// обрабатывается до конца, после чего соединение закрывается.
// Ошибка возвращается, если сервис не смог стартовать
// или брокер закрыл канал доставки.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting intent service",
		"exchange", mq.ExchangeName(s.name),
		"queue", mq.QueueName(s.name),
		"routes", len(s.routes),
	)

	if err := s.broker.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := s.broker.Close(); err != nil {
			s.logger.Warn("failed to close broker connection", "error", err)
		}
	}()

	ch, err := s.broker.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	// Топология
	topo := mq.NewTopology(ch, mq.TopologyConfig{Service: s.name, DeadLetterExchange: s.dlx}, s.logger)

	router, err := topo.RouterExchange()
	if err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	queue, err := topo.SelfQueue()
	if err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	publisher := mq.NewPublisher(ch, router, s.logger)

	dispatcher := intent.NewDispatcher(intent.DispatcherConfig{
		Handler:   s.handler,
		Publisher: publisher,
		Logger:    s.logger,
	})

	consumer := mq.NewConsumer(ch, s.logger, mq.ConsumerConfig{
		Queue:    queue,
		Handler:  s.deliveryHandler(dispatcher),
		Prefetch: s.prefetch,
	})

	// Подписка до регистрации маршрутов: ответы router'а не должны потеряться
	deliveries, err := consumer.Subscribe()
	if err != nil {
		return err
	}

	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()

	done := make(chan error, 1)
	go func() {
		done <- consumer.Serve(consumeCtx, deliveries)
	}()

	registrar := intent.NewRegistrar(publisher, topo.Exchange(), s.routes, s.logger)

	n, err := registrar.RegisterRoutes(ctx)
	s.metrics.AddRoutes(s.name, n)
	if err != nil {
		stopConsume()
		<-done
		return fmt.Errorf("register routes: %w", err)
	}

	s.ready.Store(true)
	defer s.ready.Store(false)

	s.logger.Info("intent service started", "routes_registered", n)

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down, waiting for in-flight delivery")
		stopConsume()
		<-done
		s.logger.Info("intent service stopped")
		return nil

	case err := <-done:
		return fmt.Errorf("consumer stopped: %w", err)
	}
}

// deliveryHandler возвращает mq.Handler, прогоняющий сообщение через Dispatcher.
func (s *Service) deliveryHandler(dispatcher *intent.Dispatcher) mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		start := time.Now()

		logger := telemetry.WithDelivery(s.logger, d.Raw.DeliveryTag)
		info, props := deliveryMeta(d.Raw)

		result, err := dispatcher.Dispatch(telemetry.WithLogger(ctx, logger), intent.Delivery{
			Info:       info,
			Properties: props,
			Body:       d.Body(),
		})

		var (
			env       intent.Envelope
			published int
		)
		if result != nil {
			env = result.Envelope
			published = result.Published
		}

		status := intent.Status(err)
		logger = telemetry.WithConversation(logger, env.ConversationID(), env.UserID())

		s.metrics.ObserveDelivery(s.name, string(status), time.Since(start))
		s.metrics.AddResponses(s.name, published)
		s.record(ctx, logger, env, status, published, err)

		if err != nil {
			logger.Error("delivery failed", "status", status, "published", published, "error", err)
			if status.IsRetriable() {
				return fmt.Errorf("%w: %w", mq.ErrRequeue, err)
			}
			return err
		}

		logger.Info("delivery processed", "responses", published)
		return nil
	}
}

// record сохраняет запись аудита. Ошибка аудита не влияет на обработку сообщения.
func (s *Service) record(
	ctx context.Context,
	logger *slog.Logger,
	env intent.Envelope,
	status domain.DeliveryStatus,
	published int,
	dispatchErr error,
) {
	if s.recorder == nil {
		return
	}

	rec := domain.NewDelivery(s.name, status)
	rec.ConversationID = env.ConversationID()
	rec.UserID = env.UserID()
	rec.Responses = published
	if dispatchErr != nil {
		rec.Error = dispatchErr.Error()
	}

	if err := s.recorder.Create(ctx, rec); err != nil {
		logger.Warn("failed to record delivery", "error", err)
	}
}

// deliveryMeta извлекает метаданные доставки и свойства сообщения.
func deliveryMeta(raw amqp.Delivery) (intent.DeliveryInfo, intent.Properties) {
	info := intent.DeliveryInfo{
		ConsumerTag: raw.ConsumerTag,
		DeliveryTag: raw.DeliveryTag,
		Redelivered: raw.Redelivered,
		Exchange:    raw.Exchange,
		RoutingKey:  raw.RoutingKey,
	}

	var headers map[string]any
	if len(raw.Headers) > 0 {
		headers = make(map[string]any, len(raw.Headers))
		for k, v := range raw.Headers {
			headers[k] = v
		}
	}

	props := intent.Properties{
		ContentType:     raw.ContentType,
		ContentEncoding: raw.ContentEncoding,
		CorrelationID:   raw.CorrelationId,
		ReplyTo:         raw.ReplyTo,
		MessageID:       raw.MessageId,
		Type:            raw.Type,
		AppID:           raw.AppId,
		Timestamp:       raw.Timestamp,
		Headers:         headers,
	}

	return info, props
}
