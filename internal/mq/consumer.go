package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки сообщения.
//
// nil — ack. Ошибка, обёрнутая в ErrRequeue, — nack с возвратом в очередь.
// Любая другая ошибка — nack без возврата (сообщение уходит в DLX, если он настроен).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLX.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer потребляет сообщения из очереди по одному.
//
// Сообщения обрабатываются строго последовательно в одной горутине:
// следующее сообщение не начинает обрабатываться, пока не завершено предыдущее.
type Consumer struct {
	ch       Channel
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
	tag      string
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	// Tag — consumer tag. Если пусто, генерируется.
	Tag string
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(ch Channel, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	tag := cfg.Tag
	if tag == "" {
		tag = fmt.Sprintf("%s-%s", cfg.Queue, uuid.NewString())
	}

	return &Consumer{
		ch:       ch,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
		tag:      tag,
	}
}

// Tag возвращает consumer tag.
func (c *Consumer) Tag() string {
	return c.tag
}

// Start подписывается на очередь и обрабатывает сообщения до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.Subscribe()
	if err != nil {
		return err
	}

	return c.Serve(ctx, deliveries)
}

// Subscribe настраивает prefetch и начинает потребление.
func (c *Consumer) Subscribe() (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := c.ch.Consume(
		string(c.queue), // queue
		c.tag,           // consumer tag
		false,           // auto-ack (мы ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started", "queue", c.queue, "consumer_tag", c.tag)

	return deliveries, nil
}

// Serve обрабатывает сообщения из канала доставки.
//
// После отмены ctx текущее сообщение дообрабатывается до конца,
// новые сообщения не берутся.
func (c *Consumer) Serve(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}

			if ctx.Err() != nil {
				// Остановка уже началась — возвращаем сообщение в очередь.
				_ = raw.Nack(false, true)
				return ctx.Err()
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{Raw: raw}

	// Обработка не прерывается отменой ctx, чтобы не оставлять частичных публикаций.
	err := c.handler(context.WithoutCancel(ctx), delivery)
	if err == nil {
		if ackErr := delivery.Ack(); ackErr != nil {
			c.logger.Error("failed to ack message", "queue", c.queue, "delivery_tag", raw.DeliveryTag, "error", ackErr)
		}
		return
	}

	requeue := errors.Is(err, ErrRequeue)

	c.logger.Warn("message rejected",
		"queue", c.queue,
		"delivery_tag", raw.DeliveryTag,
		"requeue", requeue,
		"error", err,
	)

	if nackErr := delivery.Nack(requeue); nackErr != nil {
		c.logger.Error("failed to nack message", "queue", c.queue, "delivery_tag", raw.DeliveryTag, "error", nackErr)
	}
}
