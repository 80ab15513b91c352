// Package mqtest содержит in-memory подмену AMQP канала для тестов.
package mqtest

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeDecl — объявленный exchange.
type ExchangeDecl struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
}

// QueueDecl — объявленная очередь.
type QueueDecl struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Args       amqp.Table
}

// Binding — привязка очереди к exchange.
type Binding struct {
	Queue    string
	Key      string
	Exchange string
}

// Published — опубликованное сообщение.
type Published struct {
	Exchange   string
	RoutingKey string
	Msg        amqp.Publishing
}

// Channel — подмена *amqp.Channel. Записывает все вызовы.
type Channel struct {
	mu sync.Mutex

	Exchanges []ExchangeDecl
	Queues    []QueueDecl
	Bindings  []Binding
	Published []Published

	// Calls — имена вызванных методов в порядке вызова.
	Calls []string

	Prefetch int
	Closed   bool

	// Deliveries — канал, отдаваемый из Consume.
	Deliveries chan amqp.Delivery

	// Ошибки, которые вернут соответствующие методы.
	ExchangeErr error
	QueueErr    error
	ConsumeErr  error

	// PublishErr возвращается из PublishWithContext; если задан FailAfter,
	// ошибка возвращается начиная с публикации номер FailAfter+1.
	PublishErr error
	FailAfter  int
}

// NewChannel создаёт Channel с буферизованным каналом доставки.
func NewChannel() *Channel {
	return &Channel{Deliveries: make(chan amqp.Delivery, 16)}
}

func (c *Channel) record(call string) {
	c.Calls = append(c.Calls, call)
}

// ExchangeDeclare реализует mq.Channel.
func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("ExchangeDeclare")
	if c.ExchangeErr != nil {
		return c.ExchangeErr
	}

	c.Exchanges = append(c.Exchanges, ExchangeDecl{Name: name, Kind: kind, Durable: durable, AutoDelete: autoDelete})
	return nil
}

// QueueDeclare реализует mq.Channel.
func (c *Channel) QueueDeclare(name string, durable, autoDelete, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("QueueDeclare")
	if c.QueueErr != nil {
		return amqp.Queue{}, c.QueueErr
	}

	c.Queues = append(c.Queues, QueueDecl{Name: name, Durable: durable, AutoDelete: autoDelete, Args: args})
	return amqp.Queue{Name: name}, nil
}

// QueueBind реализует mq.Channel.
func (c *Channel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("QueueBind")
	c.Bindings = append(c.Bindings, Binding{Queue: name, Key: key, Exchange: exchange})
	return nil
}

// Qos реализует mq.Channel.
func (c *Channel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Qos")
	c.Prefetch = prefetchCount
	return nil
}

// Consume реализует mq.Channel.
func (c *Channel) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Consume")
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}

	return c.Deliveries, nil
}

// PublishWithContext реализует mq.Channel.
func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Publish")
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.PublishErr != nil && len(c.Published) >= c.FailAfter {
		return c.PublishErr
	}

	c.Published = append(c.Published, Published{Exchange: exchange, RoutingKey: key, Msg: msg})
	return nil
}

// Close реализует mq.Channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Close")
	c.Closed = true
	return nil
}

// PublishedMessages возвращает копию опубликованных сообщений.
func (c *Channel) PublishedMessages() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Published, len(c.Published))
	copy(out, c.Published)
	return out
}

// CallLog возвращает копию журнала вызовов.
func (c *Channel) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.Calls))
	copy(out, c.Calls)
	return out
}

// WaitPublished ждёт, пока не будет опубликовано хотя бы n сообщений.
func (c *Channel) WaitPublished(n int, timeout time.Duration) ([]Published, error) {
	deadline := time.Now().Add(timeout)
	for {
		msgs := c.PublishedMessages()
		if len(msgs) >= n {
			return msgs, nil
		}
		if time.Now().After(deadline) {
			return msgs, errors.New("timeout waiting for published messages")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Acknowledger записывает ack/nack доставленных сообщений.
type Acknowledger struct {
	mu sync.Mutex

	Acked    []uint64
	Nacked   []uint64
	Requeued []uint64
}

// Ack реализует amqp.Acknowledger.
func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Acked = append(a.Acked, tag)
	return nil
}

// Nack реализует amqp.Acknowledger.
func (a *Acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if requeue {
		a.Requeued = append(a.Requeued, tag)
	} else {
		a.Nacked = append(a.Nacked, tag)
	}
	return nil
}

// Reject реализует amqp.Acknowledger.
func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Delivery создаёт доставку с этим Acknowledger.
func (a *Acknowledger) Delivery(tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: a,
		DeliveryTag:  tag,
		ContentType:  "application/json",
		Body:         body,
	}
}

// Settled возвращает общее число подтверждённых и отклонённых сообщений.
func (a *Acknowledger) Settled() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.Acked) + len(a.Nacked) + len(a.Requeued)
}

// Snapshot возвращает копии списков ack, nack и requeue.
func (a *Acknowledger) Snapshot() (acked, nacked, requeued []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acked = append([]uint64(nil), a.Acked...)
	nacked = append([]uint64(nil), a.Nacked...)
	requeued = append([]uint64(nil), a.Requeued...)
	return acked, nacked, requeued
}

// SetPublishErr задаёт ошибку публикации для уже используемого канала.
func (c *Channel) SetPublishErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.PublishErr = err
	c.FailAfter = len(c.Published)
}
