// Package intent реализует контракт конверта intent-сервиса.
//
// # Конверт
//
// Входящее сообщение — JSON объект с обязательным блоком routing:
//
//	{"routing": {"conversation": {"id": "..."}, "user": {"id": "..."}}, ...}
//
// Ответ handler'а обязан содержать ключи intents, data_types и data.
// routing в ответ копируется из входящего сообщения.
//
// # Компоненты
//
//   - ValidateInbound, AttachRouting — проверки входящих и исходящих сообщений
//   - Dispatcher — конвейер обработки одного сообщения
//   - Registrar — публикация add_route для объявленных маршрутов
//
// # Ошибки
//
// Ошибки проверки не повторяются: сообщение отклоняется целиком,
// частичная публикация ответов не выполняется.
package intent
