package cli

import (
	"context"
	"log/slog"

	"github.com/shaiso/sharedintent/internal/mq"
)

// Dialer открывает канал к брокеру и возвращает функцию закрытия соединения.
type Dialer func(ctx context.Context) (mq.Channel, func() error, error)

// NewDialer создаёт Dialer поверх mq.Connection.
func NewDialer(cfg mq.Config, logger *slog.Logger) Dialer {
	return func(ctx context.Context) (mq.Channel, func() error, error) {
		conn := mq.NewConnection(cfg, logger, nil)
		if err := conn.Connect(ctx); err != nil {
			return nil, nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, err
		}

		return ch, conn.Close, nil
	}
}

// routerPublisher объявляет router exchange и возвращает Publisher в него.
func routerPublisher(ch mq.Channel, logger *slog.Logger) (*mq.Publisher, error) {
	topo := mq.NewTopology(ch, mq.TopologyConfig{}, logger)

	router, err := topo.RouterExchange()
	if err != nil {
		return nil, err
	}

	return mq.NewPublisher(ch, router, logger), nil
}
