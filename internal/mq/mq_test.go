package mq_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/sharedintent/internal/mq"
	"github.com/shaiso/sharedintent/internal/mq/mqtest"
)

// --- Topology Tests ---

func TestNames(t *testing.T) {
	if got := mq.ExchangeName("TestSharedIntents"); got != "TestSharedIntentsExchange" {
		t.Errorf("unexpected exchange name %q", got)
	}
	if got := mq.QueueName("TestSharedIntents"); got != "TestSharedIntentsQueue" {
		t.Errorf("unexpected queue name %q", got)
	}
}

func TestTopology_RouterExchange(t *testing.T) {
	ch := mqtest.NewChannel()
	topo := mq.NewTopology(ch, mq.TopologyConfig{Service: "Echo"}, nil)

	for i := 0; i < 3; i++ {
		ex, err := topo.RouterExchange()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ex != mq.RouterExchange {
			t.Errorf("expected router_exchange, got %q", ex)
		}
	}

	// Объявление выполняется один раз
	if len(ch.Exchanges) != 1 {
		t.Fatalf("expected 1 exchange declaration, got %d", len(ch.Exchanges))
	}

	decl := ch.Exchanges[0]
	if decl.Name != "router_exchange" || decl.Kind != "topic" || !decl.Durable || decl.AutoDelete {
		t.Errorf("unexpected router exchange declaration: %+v", decl)
	}
}

func TestTopology_SelfQueue(t *testing.T) {
	ch := mqtest.NewChannel()
	topo := mq.NewTopology(ch, mq.TopologyConfig{Service: "Echo"}, nil)

	q, err := topo.SelfQueue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q != "EchoQueue" {
		t.Errorf("expected EchoQueue, got %q", q)
	}

	if _, err := topo.SelfQueue(); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}

	if len(ch.Exchanges) != 1 || len(ch.Queues) != 1 || len(ch.Bindings) != 1 {
		t.Fatalf("expected single declaration of each, got exchanges=%d queues=%d bindings=%d",
			len(ch.Exchanges), len(ch.Queues), len(ch.Bindings))
	}

	ex := ch.Exchanges[0]
	if ex.Name != "EchoExchange" || ex.Kind != "topic" || !ex.Durable || ex.AutoDelete {
		t.Errorf("unexpected self exchange declaration: %+v", ex)
	}

	queue := ch.Queues[0]
	if queue.Name != "EchoQueue" || !queue.AutoDelete {
		t.Errorf("unexpected queue declaration: %+v", queue)
	}
	if queue.Args != nil {
		t.Errorf("queue without DLX should have no args, got %v", queue.Args)
	}

	b := ch.Bindings[0]
	if b.Queue != "EchoQueue" || b.Exchange != "EchoExchange" {
		t.Errorf("unexpected binding: %+v", b)
	}
}

func TestTopology_SelfQueue_DeadLetter(t *testing.T) {
	ch := mqtest.NewChannel()
	topo := mq.NewTopology(ch, mq.TopologyConfig{Service: "Echo", DeadLetterExchange: "intents.dlx"}, nil)

	if _, err := topo.SelfQueue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ch.Exchanges) != 2 {
		t.Fatalf("expected self exchange and DLX, got %d", len(ch.Exchanges))
	}
	if ch.Exchanges[1].Name != "intents.dlx" || ch.Exchanges[1].Kind != "fanout" {
		t.Errorf("unexpected DLX declaration: %+v", ch.Exchanges[1])
	}
	if got := ch.Queues[0].Args["x-dead-letter-exchange"]; got != "intents.dlx" {
		t.Errorf("expected x-dead-letter-exchange arg, got %v", got)
	}
}

func TestTopology_DeclareError(t *testing.T) {
	ch := mqtest.NewChannel()
	ch.ExchangeErr = errors.New("PRECONDITION_FAILED")
	topo := mq.NewTopology(ch, mq.TopologyConfig{Service: "Echo"}, nil)

	if _, err := topo.RouterExchange(); err == nil {
		t.Fatal("expected error")
	}
	if _, err := topo.SelfQueue(); err == nil {
		t.Fatal("expected error")
	}
}

func TestTopologyInfo(t *testing.T) {
	info := mq.TopologyInfo("Echo", "")
	for _, want := range []string{"router_exchange", "add_route", "EchoExchange", "EchoQueue"} {
		if !strings.Contains(info, want) {
			t.Errorf("expected %q in topology info:\n%s", want, info)
		}
	}
	if strings.Contains(info, "DLX") {
		t.Error("DLX should not be listed without dead letter exchange")
	}
}

// --- Publisher Tests ---

func TestPublisher_Publish(t *testing.T) {
	ch := mqtest.NewChannel()
	p := mq.NewPublisher(ch, mq.RouterExchange, nil)

	payload := map[string]any{"intents": "chime.testing"}
	if err := p.Publish(context.Background(), mq.RoutingKeyAddRoute, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := ch.PublishedMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	msg := msgs[0]
	if msg.Exchange != "router_exchange" || msg.RoutingKey != "add_route" {
		t.Errorf("unexpected destination %s/%s", msg.Exchange, msg.RoutingKey)
	}
	if msg.Msg.ContentType != "application/json" {
		t.Errorf("unexpected content type %q", msg.Msg.ContentType)
	}
	if msg.Msg.MessageId == "" {
		t.Error("message id should be set")
	}
	if string(msg.Msg.Body) != `{"intents":"chime.testing"}` {
		t.Errorf("unexpected body %s", msg.Msg.Body)
	}
}

func TestPublisher_SkipsNil(t *testing.T) {
	ch := mqtest.NewChannel()
	p := mq.NewPublisher(ch, mq.RouterExchange, nil)

	var nilMap map[string]any

	for _, payload := range []any{nil, nilMap} {
		if err := p.Publish(context.Background(), mq.RoutingKeyNone, payload); err != nil {
			t.Fatalf("nil payload should not be an error: %v", err)
		}
	}

	if n := len(ch.PublishedMessages()); n != 0 {
		t.Errorf("expected nothing published, got %d", n)
	}
}

func TestPublisher_Errors(t *testing.T) {
	ch := mqtest.NewChannel()
	ch.PublishErr = amqp.ErrClosed
	p := mq.NewPublisher(ch, mq.RouterExchange, nil)

	err := p.Publish(context.Background(), mq.RoutingKeyNone, map[string]any{"a": 1})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Errorf("expected wrapped amqp.ErrClosed, got %v", err)
	}

	err = p.Publish(context.Background(), mq.RoutingKeyNone, map[string]any{"f": func() {}})
	if err == nil {
		t.Error("expected marshal error")
	}
}

// --- Consumer Tests ---

func TestConsumer_AckNackRequeue(t *testing.T) {
	ch := mqtest.NewChannel()
	ack := &mqtest.Acknowledger{}

	handler := func(_ context.Context, d *mq.Delivery) error {
		switch string(d.Body()) {
		case "ok":
			return nil
		case "retry":
			return fmt.Errorf("%w: broker busy", mq.ErrRequeue)
		default:
			return errors.New("bad message")
		}
	}

	c := mq.NewConsumer(ch, nil, mq.ConsumerConfig{Queue: "EchoQueue", Handler: handler})

	ch.Deliveries <- ack.Delivery(1, []byte("ok"))
	ch.Deliveries <- ack.Delivery(2, []byte("bad"))
	ch.Deliveries <- ack.Delivery(3, []byte("retry"))
	close(ch.Deliveries)

	err := c.Start(context.Background())
	if !errors.Is(err, mq.ErrDeliveriesClosed) {
		t.Fatalf("expected ErrDeliveriesClosed, got %v", err)
	}

	acked, nacked, requeued := ack.Snapshot()
	if len(acked) != 1 || acked[0] != 1 {
		t.Errorf("expected delivery 1 acked, got %v", acked)
	}
	if len(nacked) != 1 || nacked[0] != 2 {
		t.Errorf("expected delivery 2 nacked, got %v", nacked)
	}
	if len(requeued) != 1 || requeued[0] != 3 {
		t.Errorf("expected delivery 3 requeued, got %v", requeued)
	}

	if ch.Prefetch != 1 {
		t.Errorf("expected default prefetch 1, got %d", ch.Prefetch)
	}
}

func TestConsumer_Sequential(t *testing.T) {
	ch := mqtest.NewChannel()
	ack := &mqtest.Acknowledger{}

	var inFlight, maxInFlight int32
	handler := func(_ context.Context, _ *mq.Delivery) error {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}

	c := mq.NewConsumer(ch, nil, mq.ConsumerConfig{Queue: "EchoQueue", Handler: handler, Prefetch: 10})
	for i := uint64(1); i <= 10; i++ {
		ch.Deliveries <- ack.Delivery(i, []byte("{}"))
	}
	close(ch.Deliveries)

	_ = c.Start(context.Background())

	if maxInFlight != 1 {
		t.Errorf("expected at most one delivery in flight, got %d", maxInFlight)
	}

	acked, _, _ := ack.Snapshot()
	for i, tag := range acked {
		if tag != uint64(i+1) {
			t.Fatalf("deliveries completed out of order: %v", acked)
		}
	}
}

func TestConsumer_DrainOnCancel(t *testing.T) {
	ch := mqtest.NewChannel()
	ack := &mqtest.Acknowledger{}

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	var handlerCtxErr error
	handler := func(hctx context.Context, _ *mq.Delivery) error {
		close(started)
		<-release
		handlerCtxErr = hctx.Err()
		return nil
	}

	c := mq.NewConsumer(ch, nil, mq.ConsumerConfig{Queue: "EchoQueue", Handler: handler})
	ch.Deliveries <- ack.Delivery(1, []byte("{}"))

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	<-started
	cancel()
	close(release)

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Сообщение, начатое до отмены, дообработано и подтверждено
	acked, _, _ := ack.Snapshot()
	if len(acked) != 1 {
		t.Errorf("in-flight delivery should be acked, got %v", acked)
	}
	if handlerCtxErr != nil {
		t.Errorf("handler context should not be cancelled, got %v", handlerCtxErr)
	}
}

func TestConsumer_ConsumeError(t *testing.T) {
	ch := mqtest.NewChannel()
	ch.ConsumeErr = errors.New("NOT_FOUND")

	c := mq.NewConsumer(ch, nil, mq.ConsumerConfig{Queue: "EchoQueue", Handler: func(context.Context, *mq.Delivery) error { return nil }})
	if _, err := c.Subscribe(); err == nil {
		t.Fatal("expected error")
	}
}

// --- Connection Tests ---

func TestConnection_CloseWithoutConnect(t *testing.T) {
	conn := mq.NewConnection(mq.Config{}, nil, nil)

	if conn.IsConnected() {
		t.Error("new connection should not be connected")
	}
	if _, err := conn.Channel(); !errors.Is(err, mq.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("close without connect should succeed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close should succeed: %v", err)
	}
	if err := conn.Connect(context.Background()); !errors.Is(err, mq.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestConfig_URI(t *testing.T) {
	uri := mq.Config{Username: "guest", Password: "guest"}.URI()

	if uri.Host != "localhost" || uri.Port != 5672 || uri.Vhost != "/" {
		t.Errorf("unexpected defaults: %+v", uri)
	}

	uri = mq.Config{Host: "rabbit", Port: 5673, Vhost: "/"}.URI()
	if uri.Host != "rabbit" || uri.Port != 5673 {
		t.Errorf("unexpected uri: %+v", uri)
	}
}
