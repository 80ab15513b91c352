package mq

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// RouterExchange — общий exchange, через который идут ответы сервисов
// и управляющие сообщения add_route.
const RouterExchange Exchange = "router_exchange"

// Routing keys.
const (
	// RoutingKeyNone — ответы публикуются без ключа.
	RoutingKeyNone RoutingKey = ""

	// RoutingKeyAddRoute — управляющее сообщение регистрации маршрута.
	RoutingKeyAddRoute RoutingKey = "add_route"
)

const (
	exchangeKindTopic  = "topic"
	exchangeKindFanout = "fanout"
)

// ExchangeName возвращает имя собственного exchange сервиса: "<Name>Exchange".
func ExchangeName(service string) Exchange {
	return Exchange(service + "Exchange")
}

// QueueName возвращает имя собственной очереди сервиса: "<Name>Queue".
func QueueName(service string) Queue {
	return Queue(service + "Queue")
}

// TopologyConfig — конфигурация Topology.
type TopologyConfig struct {
	// Service — имя сервиса, из которого выводятся имена exchange и queue.
	Service string

	// DeadLetterExchange — опциональный DLX для собственной очереди.
	DeadLetterExchange Exchange
}

// Topology объявляет exchanges и очереди сервиса.
//
// Повторное объявление с теми же свойствами для брокера — no-op,
// поэтому результаты объявления просто кэшируются.
type Topology struct {
	ch     Channel
	cfg    TopologyConfig
	logger *slog.Logger

	mu          sync.Mutex
	routerReady bool
	selfQueue   Queue
}

// NewTopology создаёт Topology поверх канала.
func NewTopology(ch Channel, cfg TopologyConfig, logger *slog.Logger) *Topology {
	if logger == nil {
		logger = slog.Default()
	}

	return &Topology{
		ch:     ch,
		cfg:    cfg,
		logger: logger,
	}
}

// Exchange возвращает имя собственного exchange сервиса.
func (t *Topology) Exchange() Exchange {
	return ExchangeName(t.cfg.Service)
}

// Queue возвращает имя собственной очереди сервиса.
func (t *Topology) Queue() Queue {
	return QueueName(t.cfg.Service)
}

// RouterExchange объявляет (или подключается к) router_exchange.
func (t *Topology) RouterExchange() (Exchange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.routerReady {
		return RouterExchange, nil
	}

	if err := t.declareTopic(RouterExchange); err != nil {
		return "", err
	}

	t.routerReady = true
	return RouterExchange, nil
}

// SelfQueue объявляет собственный exchange и очередь сервиса
// и привязывает очередь к exchange.
func (t *Topology) SelfQueue() (Queue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.selfQueue != "" {
		return t.selfQueue, nil
	}

	exchange := t.Exchange()
	queue := t.Queue()

	if err := t.declareTopic(exchange); err != nil {
		return "", err
	}

	var args amqp.Table
	if dlx := t.cfg.DeadLetterExchange; dlx != "" {
		err := t.ch.ExchangeDeclare(
			string(dlx),        // name
			exchangeKindFanout, // type
			true,               // durable
			false,              // auto-deleted
			false,              // internal
			false,              // no-wait
			nil,                // arguments
		)
		if err != nil {
			return "", fmt.Errorf("declare exchange %s: %w", dlx, err)
		}
		args = amqp.Table{"x-dead-letter-exchange": string(dlx)}
	}

	_, err := t.ch.QueueDeclare(
		string(queue), // name
		false,         // durable
		true,          // delete when unused
		false,         // exclusive
		false,         // no-wait
		args,          // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", queue, err)
	}

	err = t.ch.QueueBind(
		string(queue),    // queue name
		"",               // routing key
		string(exchange), // exchange
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return "", fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}

	t.logger.Info("queue declared", "queue", queue, "exchange", exchange)

	t.selfQueue = queue
	return queue, nil
}

// declareTopic объявляет durable topic exchange без auto-delete.
func (t *Topology) declareTopic(name Exchange) error {
	err := t.ch.ExchangeDeclare(
		string(name),      // name
		exchangeKindTopic, // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// TopologyInfo возвращает описание топологии сервиса для логирования и CLI.
func TopologyInfo(service string, deadLetter Exchange) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (topic, durable)\n", RouterExchange)
	fmt.Fprintf(&b, "├── responses [routing: none]\n")
	fmt.Fprintf(&b, "└── route registration [routing: %s]\n", RoutingKeyAddRoute)
	fmt.Fprintf(&b, "%s (topic, durable)\n", ExchangeName(service))
	fmt.Fprintf(&b, "└── %s [auto-delete]\n", QueueName(service))
	if deadLetter != "" {
		fmt.Fprintf(&b, "        DLX: %s (fanout, durable)\n", deadLetter)
	}

	return b.String()
}
