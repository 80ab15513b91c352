package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/sharedintent/internal/domain"
	"github.com/shaiso/sharedintent/internal/mq"
)

// Publisher публикует сообщения в router exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey mq.RoutingKey, payload any) error
}

// Delivery — входящее сообщение для Dispatcher.
type Delivery struct {
	Info       DeliveryInfo
	Properties Properties
	Body       []byte
}

// Result — результат обработки одного сообщения.
type Result struct {
	// Envelope — разобранный входящий конверт (nil при ошибке декодирования).
	Envelope Envelope

	// Responses — проверенные ответы с routing.
	Responses []Response

	// Published — сколько ответов опубликовано.
	Published int
}

// Dispatcher прогоняет одно сообщение через конвейер:
//
//	декодирование → ValidateInbound → Handler → Coerce/AttachRouting → публикация
//
// Ответы публикуются только если проверку прошли все ответы сообщения.
type Dispatcher struct {
	handler   Handler
	publisher Publisher
	logger    *slog.Logger
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	Handler   Handler
	Publisher Publisher
	Logger    *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		handler:   cfg.Handler,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Process выполняет конвейер без публикации и возвращает проверенные ответы.
// Result возвращается и при ошибке, если конверт удалось разобрать.
func (d *Dispatcher) Process(ctx context.Context, delivery Delivery) (*Result, error) {
	d.logger.Debug("received message", "from_queue", string(delivery.Body))

	if d.handler == nil {
		return nil, ErrNoHandler
	}

	env, err := Decode(delivery.Body)
	if err != nil {
		return nil, err
	}

	result := &Result{Envelope: env}

	if err := ValidateInbound(env); err != nil {
		return result, err
	}

	out, err := d.handler.HandleMessage(ctx, delivery.Info, delivery.Properties, env)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrHandlerFailed, err)
	}

	candidates := Coerce(out)
	responses := make([]Response, 0, len(candidates))

	for i, candidate := range candidates {
		resp, err := AttachRouting(env, candidate)
		if err != nil {
			return result, fmt.Errorf("response %d: %w", i, err)
		}
		responses = append(responses, resp)
	}

	result.Responses = responses

	d.logger.Debug("responses ready", "to_queue", responses, "count", len(responses))

	return result, nil
}

// Dispatch обрабатывает сообщение и публикует ответы в порядке,
// в котором их вернул handler.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery Delivery) (*Result, error) {
	result, err := d.Process(ctx, delivery)
	if err != nil {
		return result, err
	}

	for i, resp := range result.Responses {
		if err := d.publisher.Publish(ctx, mq.RoutingKeyNone, resp); err != nil {
			return result, fmt.Errorf("%w %d of %d: %w", ErrPublish, i+1, len(result.Responses), err)
		}
		result.Published++
	}

	return result, nil
}

// Status сопоставляет ошибку Dispatch со статусом обработки.
func Status(err error) domain.DeliveryStatus {
	switch {
	case err == nil:
		return domain.DeliveryStatusPublished
	case errors.Is(err, ErrDecode):
		return domain.DeliveryStatusDecodeFailed
	case errors.Is(err, ErrMissingRouting),
		errors.Is(err, ErrMissingConversationID),
		errors.Is(err, ErrMissingUserID):
		return domain.DeliveryStatusInvalidInbound
	case errors.Is(err, ErrNoHandler), errors.Is(err, ErrHandlerFailed):
		return domain.DeliveryStatusHandlerFailed
	case errors.Is(err, ErrPublish):
		return domain.DeliveryStatusPublishFailed
	default:
		return domain.DeliveryStatusInvalidResponse
	}
}
