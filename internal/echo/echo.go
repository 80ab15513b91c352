// Package echo — пример intent-сервиса: возвращает полученные данные
// обратно в router с заданным intent и типом данных.
package echo

import (
	"context"

	"github.com/shaiso/sharedintent/internal/intent"
	"github.com/shaiso/sharedintent/internal/telemetry"
)

// Значения по умолчанию для ответа и маршрута.
const (
	DefaultIntent       = "chime.ActionIntent"
	DefaultDataType     = "chime.string"
	DefaultListenIntent = "chime.echo"
)

// Handler отвечает на каждое сообщение его же полем data.
//
// Если data — массив, на каждый элемент публикуется отдельный ответ.
// Сообщение без data остаётся без ответа.
type Handler struct {
	Intent   string
	DataType string
}

var _ intent.Handler = (*Handler)(nil)

// New создаёт Handler со значениями по умолчанию.
func New() *Handler {
	return &Handler{
		Intent:   DefaultIntent,
		DataType: DefaultDataType,
	}
}

// Routes возвращает маршруты, на которые подписывается echo-сервис.
func Routes() []intent.Route {
	return []intent.Route{
		{Intents: DefaultListenIntent, DataTypes: DefaultDataType},
	}
}

// HandleMessage реализует intent.Handler.
func (h *Handler) HandleMessage(ctx context.Context, info intent.DeliveryInfo, _ intent.Properties, env intent.Envelope) (any, error) {
	logger := telemetry.FromContext(ctx)

	data, ok := env[intent.KeyData]
	if !ok || data == nil {
		logger.Debug("nothing to echo", "routing_key", info.RoutingKey)
		return nil, nil
	}

	items, isList := data.([]any)
	if !isList {
		return h.response(data), nil
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, h.response(item))
	}

	logger.Debug("echoing items", "count", len(out))
	return out, nil
}

func (h *Handler) response(data any) map[string]any {
	return map[string]any{
		intent.KeyIntents:   h.Intent,
		intent.KeyDataTypes: h.DataType,
		intent.KeyData:      data,
	}
}
