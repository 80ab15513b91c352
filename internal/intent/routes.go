package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/sharedintent/internal/mq"
)

// Route — интерес сервиса к паре (intent, data type).
// Значения передаются в router как есть.
type Route struct {
	Intents   any `json:"intents"`
	DataTypes any `json:"data_types"`
}

// RouteAnnouncement — управляющее сообщение add_route.
type RouteAnnouncement struct {
	Route
	Exchange mq.Exchange `json:"exchange"`
}

// Registrar объявляет маршруты сервиса в router exchange.
type Registrar struct {
	publisher Publisher
	exchange  mq.Exchange
	routes    []Route
	logger    *slog.Logger
}

// NewRegistrar создаёт Registrar. Список маршрутов копируется.
func NewRegistrar(publisher Publisher, exchange mq.Exchange, routes []Route, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registrar{
		publisher: publisher,
		exchange:  exchange,
		routes:    append([]Route(nil), routes...),
		logger:    logger,
	}
}

// Routes возвращает копию объявленных маршрутов.
func (r *Registrar) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// RegisterRoutes публикует по одному сообщению add_route на каждый маршрут
// в порядке объявления. Возвращает число опубликованных сообщений.
func (r *Registrar) RegisterRoutes(ctx context.Context) (int, error) {
	for i, route := range r.routes {
		msg := RouteAnnouncement{Route: route, Exchange: r.exchange}

		if err := r.publisher.Publish(ctx, mq.RoutingKeyAddRoute, msg); err != nil {
			return i, fmt.Errorf("register route %v/%v: %w", route.Intents, route.DataTypes, err)
		}

		r.logger.Info("route registered",
			"intents", route.Intents,
			"data_types", route.DataTypes,
			"exchange", r.exchange,
		)
	}

	return len(r.routes), nil
}
