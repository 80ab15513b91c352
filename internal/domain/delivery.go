package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus — итог обработки входящего сообщения.
//
// Сообщение проходит этапы:
//
//	декодирование → проверка routing → handler → проверка ответов → публикация
//
// Статус фиксирует, на каком этапе обработка завершилась.
type DeliveryStatus string

const (
	// DeliveryStatusPublished — все ответы опубликованы (в том числе ноль ответов).
	DeliveryStatusPublished DeliveryStatus = "PUBLISHED"

	// DeliveryStatusDecodeFailed — тело сообщения не является JSON объектом.
	DeliveryStatusDecodeFailed DeliveryStatus = "DECODE_FAILED"

	// DeliveryStatusInvalidInbound — во входящем сообщении нет routing/conversation.id/user.id.
	DeliveryStatusInvalidInbound DeliveryStatus = "INVALID_INBOUND"

	// DeliveryStatusHandlerFailed — handler не зарегистрирован или вернул ошибку.
	DeliveryStatusHandlerFailed DeliveryStatus = "HANDLER_FAILED"

	// DeliveryStatusInvalidResponse — ответ handler'а не прошёл проверку.
	DeliveryStatusInvalidResponse DeliveryStatus = "INVALID_RESPONSE"

	// DeliveryStatusPublishFailed — ошибка публикации в router exchange.
	DeliveryStatusPublishFailed DeliveryStatus = "PUBLISH_FAILED"
)

// IsSuccess возвращает true для успешно обработанного сообщения.
func (s DeliveryStatus) IsSuccess() bool {
	return s == DeliveryStatusPublished
}

// IsRetriable возвращает true, если сообщение имеет смысл вернуть в очередь.
// Ошибки структуры и handler'а повторно не обрабатываются.
func (s DeliveryStatus) IsRetriable() bool {
	return s == DeliveryStatusPublishFailed
}

// Delivery — запись аудита об обработке одного входящего сообщения.
type Delivery struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// Service — имя сервиса, обработавшего сообщение.
	Service string `json:"service"`

	// ConversationID — routing.conversation.id входящего сообщения, если был.
	ConversationID string `json:"conversation_id,omitempty"`

	// UserID — routing.user.id входящего сообщения, если был.
	UserID string `json:"user_id,omitempty"`

	// Status — итог обработки.
	Status DeliveryStatus `json:"status"`

	// Responses — количество опубликованных ответов.
	Responses int `json:"responses"`

	// Error — текст ошибки для неуспешной обработки.
	Error string `json:"error,omitempty"`

	// CreatedAt — время завершения обработки.
	CreatedAt time.Time `json:"created_at"`
}

// NewDelivery создаёт запись аудита для сервиса.
func NewDelivery(service string, status DeliveryStatus) *Delivery {
	return &Delivery{
		ID:        uuid.New(),
		Service:   service,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}
