package intent

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки обработки сообщений.
var (
	// ErrDecode — тело сообщения не является JSON объектом.
	ErrDecode = errors.New("payload is not a JSON object")

	// ErrMissingRouting — во входящем сообщении нет ключа routing.
	ErrMissingRouting = errors.New("payload missing routing")

	// ErrMissingConversationID — нет routing.conversation.id.
	ErrMissingConversationID = errors.New("payload missing convo id")

	// ErrMissingUserID — нет routing.user.id.
	ErrMissingUserID = errors.New("payload missing user id")

	// ErrNoHandler — у сервиса не зарегистрирован handler.
	ErrNoHandler = errors.New("you must define handle message")

	// ErrHandlerFailed — handler вернул ошибку.
	ErrHandlerFailed = errors.New("handler failed")

	// ErrNoResponse — handler вернул nil вместо ответа.
	ErrNoResponse = errors.New("no response provided")

	// ErrNotRoutable — ответ не является routable intent.
	ErrNotRoutable = errors.New("response must be a routable intent hash")

	// ErrRoutingNotFound — у исходного сообщения нет routing при сборке ответа.
	ErrRoutingNotFound = errors.New(`key not found: "routing"`)

	// ErrPublish — ошибка публикации ответа.
	ErrPublish = errors.New("publish response")
)

// MissingKeysError — в ответе нет части обязательных ключей.
type MissingKeysError struct {
	// Missing — отсутствующие ключи в порядке RequiredResponseKeys.
	Missing []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("%s. Missing: %s", ErrNotRoutable, formatKeys(e.Missing))
}

// Is позволяет проверять ошибку через errors.Is(err, ErrNotRoutable).
func (e *MissingKeysError) Is(target error) bool {
	return target == ErrNotRoutable
}

// formatKeys форматирует список ключей как ["a", "b"].
func formatKeys(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
