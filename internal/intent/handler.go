package intent

import (
	"context"
	"time"
)

// DeliveryInfo — метаданные доставки (как сообщение попало в очередь).
type DeliveryInfo struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

// Properties — свойства AMQP сообщения.
type Properties struct {
	ContentType     string
	ContentEncoding string
	CorrelationID   string
	ReplyTo         string
	MessageID       string
	Type            string
	AppID           string
	Timestamp       time.Time
	Headers         map[string]any
}

// Handler — бизнес-логика intent-сервиса.
//
// HandleMessage получает проверенный конверт и возвращает:
//   - один ответ (map с ключами intents, data_types, data);
//   - срез ответов (в том числе пустой);
//   - nil, если отвечать не нужно.
//
// routing в ответ добавлять не нужно — его проставляет Dispatcher.
type Handler interface {
	HandleMessage(ctx context.Context, info DeliveryInfo, props Properties, env Envelope) (any, error)
}

// HandlerFunc позволяет использовать функцию как Handler.
type HandlerFunc func(ctx context.Context, info DeliveryInfo, props Properties, env Envelope) (any, error)

// HandleMessage вызывает f.
func (f HandlerFunc) HandleMessage(ctx context.Context, info DeliveryInfo, props Properties, env Envelope) (any, error) {
	return f(ctx, info, props, env)
}
