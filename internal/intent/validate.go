package intent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ValidateInbound проверяет, что во входящем сообщении есть
// routing, routing.conversation.id и routing.user.id.
// Проверки выполняются в этом порядке; возвращается первая нарушенная.
func ValidateInbound(env Envelope) error {
	routing, ok := env[KeyRouting]
	if !ok {
		return fmt.Errorf("%w %s", ErrMissingRouting, compact(env))
	}

	r, _ := asMap(routing)

	conversation, _ := asMap(r[KeyConversation])
	if _, ok := conversation[KeyID]; !ok {
		return ErrMissingConversationID
	}

	user, _ := asMap(r[KeyUser])
	if _, ok := user[KeyID]; !ok {
		return ErrMissingUserID
	}

	return nil
}

// AttachRouting проверяет ответ handler'а и возвращает его копию
// с routing, взятым из исходного сообщения.
//
// Порядок проверок:
//  1. ответ не nil (ErrNoResponse);
//  2. у исходного сообщения есть routing (ErrRoutingNotFound);
//  3. ответ — map (ErrNotRoutable);
//  4. после приведения ключей к строкам есть intents, data_types, data (*MissingKeysError).
func AttachRouting(original Envelope, response any) (Response, error) {
	if isNil(response) {
		return nil, ErrNoResponse
	}

	routing, ok := original[KeyRouting]
	if !ok {
		return nil, ErrRoutingNotFound
	}

	normalized, err := NormalizeResponse(response)
	if err != nil {
		return nil, err
	}

	normalized[KeyRouting] = routing
	return normalized, nil
}

// NormalizeResponse приводит ключи ответа к строкам и проверяет
// наличие обязательных ключей. Исходное значение не изменяется.
func NormalizeResponse(response any) (Response, error) {
	if isNil(response) {
		return nil, ErrNoResponse
	}

	normalized, ok := stringKeys(response)
	if !ok {
		return nil, fmt.Errorf("%w with: %s, but was: %v",
			ErrNotRoutable, formatKeys(RequiredResponseKeys()), response)
	}

	var missing []string
	for _, key := range RequiredResponseKeys() {
		if _, ok := normalized[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingKeysError{Missing: missing}
	}

	return normalized, nil
}

// stringKeys копирует map с ключами любого типа в Response.
//
// При совпадении приведённых ключей побеждает ключ, который изначально
// был строкой; среди нестроковых — последний в порядке fmt-представления.
func stringKeys(v any) (Response, bool) {
	if m, ok := asMap(v); ok {
		out := make(Response, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}

	type entry struct {
		key    string
		native bool
		value  any
	}

	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		for k.Kind() == reflect.Interface && !k.IsNil() {
			k = k.Elem()
		}

		e := entry{value: iter.Value().Interface()}
		if k.Kind() == reflect.String {
			e.key = k.String()
			e.native = true
		} else {
			e.key = fmt.Sprint(k.Interface())
		}
		entries = append(entries, e)
	}

	// Нестроковые ключи применяются первыми, строковые перезаписывают их.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].native != entries[j].native {
			return !entries[i].native
		}
		return entries[i].key < entries[j].key
	})

	out := make(Response, len(entries))
	for _, e := range entries {
		out[e.key] = e.value
	}
	return out, true
}

// Coerce приводит результат handler'а к списку кандидатов в ответы.
//
// Одиночный map оборачивается в список из одного элемента, nil даёт
// пустой список, срезы и массивы разворачиваются поэлементно.
// Любое другое значение становится списком из одного элемента
// и будет отклонено при проверке ответа.
func Coerce(result any) []any {
	if result == nil {
		return nil
	}

	rv := reflect.ValueOf(result)
	switch rv.Kind() {
	case reflect.Map:
		return []any{result}

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			// []byte — скаляр, а не последовательность ответов
			return []any{result}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out

	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return []any{result}

	default:
		return []any{result}
	}
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

// compact возвращает JSON представление конверта для текста ошибки.
func compact(env Envelope) string {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Sprint(map[string]any(env))
	}
	return string(b)
}
