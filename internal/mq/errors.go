package mq

import "errors"

// Ошибки работы с брокером.
var (
	// ErrConnectTimeout — бюджет времени на подключение исчерпан без единой попытки.
	ErrConnectTimeout = errors.New("rabbitmq connect timeout")

	// ErrNotConnected — соединение ещё не открыто.
	ErrNotConnected = errors.New("rabbitmq not connected")

	// ErrClosed — соединение уже закрыто через Close.
	ErrClosed = errors.New("rabbitmq connection closed")

	// ErrDeliveriesClosed — брокер закрыл канал доставки.
	ErrDeliveriesClosed = errors.New("deliveries channel closed")

	// ErrRequeue — обработчик просит вернуть сообщение в очередь.
	ErrRequeue = errors.New("requeue delivery")
)
