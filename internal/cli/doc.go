// Package cli реализует intentctl — инструмент оператора для ручной
// отправки управляющих сообщений в шину intent-сервисов.
//
// # Ключевые компоненты
//
// ## Dialer
//
// Открывает AMQP канал через mq.Connection (тот же retry и те же
// параметры брокера, что у сервисов). Команды получают Dialer через
// замыкание dialFn, чтобы PersistentFlags были разобраны до подключения.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
//   - route add: публикует add_route в router_exchange
//   - send: публикует JSON конверт в произвольный exchange
//   - topology: печатает производные имена exchange/queue сервиса
//   - deliveries list: читает аудит из PostgreSQL
package cli
