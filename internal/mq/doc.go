// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — единственное соединение на процесс, ограниченный по времени retry
//   - topology.go   — имена и объявление exchanges/queues сервиса, router exchange
//   - publisher.go  — публикация JSON сообщений в exchange
//   - consumer.go   — последовательное потребление сообщений из очереди
//
// Топология intent-сервиса с именем Name:
//
//	router_exchange (topic, durable)   — общий exchange для ответов и add_route
//	NameExchange    (topic, durable)   — собственный exchange сервиса
//	└── NameQueue   (auto-delete)      — собственная очередь сервиса
package mq
