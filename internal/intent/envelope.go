package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ключи конверта.
const (
	KeyRouting      = "routing"
	KeyConversation = "conversation"
	KeyUser         = "user"
	KeyID           = "id"

	KeyIntents   = "intents"
	KeyDataTypes = "data_types"
	KeyData      = "data"
	KeyExchange  = "exchange"
)

// RequiredResponseKeys возвращает ключи, обязательные для routable ответа.
func RequiredResponseKeys() []string {
	return []string{KeyIntents, KeyDataTypes, KeyData}
}

// Envelope — входящее сообщение: произвольный JSON объект
// с обязательным блоком routing.
type Envelope map[string]any

// Response — исходящее сообщение с ключами intents, data_types, data и routing.
type Response map[string]any

// Decode разбирает тело сообщения в Envelope.
// JSON null и пустое тело дают пустой Envelope.
func Decode(body []byte) (Envelope, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Envelope{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrDecode)
	}

	switch m := v.(type) {
	case nil:
		return Envelope{}, nil
	case map[string]any:
		return Envelope(m), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrDecode, v)
	}
}

// Routing возвращает блок routing как есть.
func (e Envelope) Routing() (any, bool) {
	r, ok := e[KeyRouting]
	return r, ok
}

// ConversationID возвращает routing.conversation.id в виде строки
// или пустую строку, если его нет.
func (e Envelope) ConversationID() string {
	return e.routingID(KeyConversation)
}

// UserID возвращает routing.user.id в виде строки или пустую строку.
func (e Envelope) UserID() string {
	return e.routingID(KeyUser)
}

func (e Envelope) routingID(section string) string {
	routing, _ := asMap(e[KeyRouting])
	block, _ := asMap(routing[section])
	id, ok := block[KeyID]
	if !ok || id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

// asMap приводит значение к map[string]any без копирования.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Envelope:
		return m, true
	case Response:
		return m, true
	default:
		return nil, false
	}
}
