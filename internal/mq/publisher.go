package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует JSON сообщения в один exchange.
type Publisher struct {
	ch       Channel
	exchange Exchange
	logger   *slog.Logger
}

// NewPublisher создаёт Publisher для exchange.
func NewPublisher(ch Channel, exchange Exchange, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger,
	}
}

// Exchange возвращает exchange, в который публикует Publisher.
func (p *Publisher) Exchange() Exchange {
	return p.exchange
}

// Publish сериализует payload в JSON и публикует его с routing key.
// Пустой payload (nil) не публикуется и ошибкой не считается.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, payload any) error {
	if isNil(payload) {
		p.logger.Debug("not publishing nil payload", "exchange", p.exchange)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.PublishRaw(ctx, routingKey, body)
}

// PublishRaw публикует уже сериализованное тело сообщения.
func (p *Publisher) PublishRaw(ctx context.Context, routingKey RoutingKey, body []byte) error {
	messageID := uuid.New().String()

	err := p.ch.PublishWithContext(
		ctx,
		string(p.exchange), // exchange
		string(routingKey), // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", p.exchange,
		"routing_key", routingKey,
		"message_id", messageID,
	)

	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
