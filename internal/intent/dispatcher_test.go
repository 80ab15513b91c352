package intent

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/shaiso/sharedintent/internal/domain"
	"github.com/shaiso/sharedintent/internal/mq"
)

type published struct {
	key     mq.RoutingKey
	payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key mq.RoutingKey, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: key, payload: payload})
	return nil
}

func staticHandler(out any, err error) HandlerFunc {
	return func(context.Context, DeliveryInfo, Properties, Envelope) (any, error) {
		return out, err
	}
}

func inboundBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"this":    "is the data",
		"routing": validRouting(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

// --- Dispatcher Tests ---

func TestDispatcher_SingleResponse(t *testing.T) {
	pub := &fakePublisher{}

	var gotInfo DeliveryInfo
	var gotEnv Envelope
	handler := HandlerFunc(func(_ context.Context, info DeliveryInfo, _ Properties, env Envelope) (any, error) {
		gotInfo = info
		gotEnv = env
		return routableResponse(), nil
	})

	d := NewDispatcher(DispatcherConfig{Handler: handler, Publisher: pub})
	result, err := d.Dispatch(context.Background(), Delivery{
		Info: DeliveryInfo{DeliveryTag: 7},
		Body: inboundBody(t),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotInfo.DeliveryTag != 7 {
		t.Errorf("handler should receive delivery info, got %+v", gotInfo)
	}
	if gotEnv["this"] != "is the data" {
		t.Errorf("handler should receive decoded envelope, got %v", gotEnv)
	}

	if len(pub.msgs) != 1 || result.Published != 1 {
		t.Fatalf("expected exactly 1 publish, got %d", len(pub.msgs))
	}

	msg := pub.msgs[0]
	if msg.key != mq.RoutingKeyNone {
		t.Errorf("responses should be published without routing key, got %q", msg.key)
	}

	resp := msg.payload.(Response)
	if resp["intents"] != "chime.ActionIntent" {
		t.Errorf("unexpected response %v", resp)
	}

	wantRouting := map[string]any{
		"conversation": map[string]any{"id": "c-1"},
		"user":         map[string]any{"id": "u-1", "name": "ann"},
	}
	if !reflect.DeepEqual(resp["routing"], wantRouting) {
		t.Errorf("routing not attached: %v", resp["routing"])
	}
}

func TestDispatcher_MultipleResponses(t *testing.T) {
	for _, n := range []int{0, 2, 5} {
		pub := &fakePublisher{}

		out := make([]any, n)
		for i := range out {
			r := routableResponse()
			r["data"] = i
			out[i] = r
		}

		d := NewDispatcher(DispatcherConfig{Handler: staticHandler(out, nil), Publisher: pub})
		if _, err := d.Dispatch(context.Background(), Delivery{Body: inboundBody(t)}); err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}

		if len(pub.msgs) != n {
			t.Fatalf("n=%d: expected %d publishes, got %d", n, n, len(pub.msgs))
		}

		// Порядок публикации совпадает с порядком ответов handler'а
		for i, msg := range pub.msgs {
			if msg.payload.(Response)["data"] != i {
				t.Errorf("n=%d: response %d published out of order", n, i)
			}
		}
	}
}

func TestDispatcher_NilResult(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(DispatcherConfig{Handler: staticHandler(nil, nil), Publisher: pub})

	result, err := d.Dispatch(context.Background(), Delivery{Body: inboundBody(t)})
	if err != nil {
		t.Fatalf("nil handler result should mean zero responses: %v", err)
	}
	if len(pub.msgs) != 0 || len(result.Responses) != 0 {
		t.Errorf("expected no responses, got %d", len(pub.msgs))
	}
}

func TestDispatcher_AllOrNothing(t *testing.T) {
	pub := &fakePublisher{}
	out := []any{routableResponse(), map[string]any{"data": "x"}, routableResponse()}

	d := NewDispatcher(DispatcherConfig{Handler: staticHandler(out, nil), Publisher: pub})
	_, err := d.Dispatch(context.Background(), Delivery{Body: inboundBody(t)})

	var mk *MissingKeysError
	if !errors.As(err, &mk) {
		t.Fatalf("expected MissingKeysError, got %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("no response should be published when one is invalid, got %d", len(pub.msgs))
	}
}

func TestDispatcher_Errors(t *testing.T) {
	handlerErr := errors.New("boom")

	tests := []struct {
		name    string
		handler Handler
		body    string
		want    error
		status  domain.DeliveryStatus
	}{
		{"no handler", nil, `{}`, ErrNoHandler, domain.DeliveryStatusHandlerFailed},
		{"bad json", staticHandler(nil, nil), `{`, ErrDecode, domain.DeliveryStatusDecodeFailed},
		{"missing routing", staticHandler(nil, nil), `{"data":1}`, ErrMissingRouting, domain.DeliveryStatusInvalidInbound},
		{"empty routing", staticHandler(nil, nil), `{"this":"is the data","routing":{}}`, ErrMissingConversationID, domain.DeliveryStatusInvalidInbound},
		{
			"missing user",
			staticHandler(nil, nil),
			`{"routing":{"conversation":{"id":"c"},"user":{}}}`,
			ErrMissingUserID,
			domain.DeliveryStatusInvalidInbound,
		},
		{
			"handler error",
			staticHandler(nil, handlerErr),
			`{"routing":{"conversation":{"id":"c"},"user":{"id":"u"}}}`,
			handlerErr,
			domain.DeliveryStatusHandlerFailed,
		},
		{
			"nil response in list",
			staticHandler([]any{routableResponse(), nil}, nil),
			`{"routing":{"conversation":{"id":"c"},"user":{"id":"u"}}}`,
			ErrNoResponse,
			domain.DeliveryStatusInvalidResponse,
		},
		{
			"not a map",
			staticHandler("blah blah", nil),
			`{"routing":{"conversation":{"id":"c"},"user":{"id":"u"}}}`,
			ErrNotRoutable,
			domain.DeliveryStatusInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			d := NewDispatcher(DispatcherConfig{Handler: tt.handler, Publisher: pub})

			_, err := d.Dispatch(context.Background(), Delivery{Body: []byte(tt.body)})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := Status(err); got != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, got)
			}
			if len(pub.msgs) != 0 {
				t.Errorf("nothing should be published, got %d", len(pub.msgs))
			}
		})
	}
}

func TestDispatcher_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	d := NewDispatcher(DispatcherConfig{Handler: staticHandler(routableResponse(), nil), Publisher: pub})

	result, err := d.Dispatch(context.Background(), Delivery{Body: inboundBody(t)})
	if !errors.Is(err, ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
	if Status(err) != domain.DeliveryStatusPublishFailed {
		t.Errorf("unexpected status %s", Status(err))
	}
	if result.Published != 0 {
		t.Errorf("expected 0 published, got %d", result.Published)
	}
	if result.Envelope.ConversationID() != "c-1" {
		t.Error("result should carry decoded envelope")
	}
}

func TestStatus_Success(t *testing.T) {
	if Status(nil) != domain.DeliveryStatusPublished {
		t.Error("nil error should map to PUBLISHED")
	}
}

// --- Registrar Tests ---

func TestRegistrar_RegisterRoutes(t *testing.T) {
	pub := &fakePublisher{}
	routes := []Route{
		{Intents: "chime.testing", DataTypes: "chime.string"},
		{Intents: []string{"chime.a", "chime.b"}, DataTypes: "chime.json"},
	}

	r := NewRegistrar(pub, mq.ExchangeName("TestSharedIntents"), routes, nil)

	// Изменение исходного среза не влияет на Registrar
	routes[0].Intents = "mutated"

	n, err := r.RegisterRoutes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || len(pub.msgs) != 2 {
		t.Fatalf("expected 2 announcements, got %d", len(pub.msgs))
	}

	for _, msg := range pub.msgs {
		if msg.key != mq.RoutingKeyAddRoute {
			t.Errorf("expected add_route key, got %q", msg.key)
		}
	}

	body, err := json.Marshal(pub.msgs[0].payload)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"intents":"chime.testing","data_types":"chime.string","exchange":"TestSharedIntentsExchange"}`
	if string(body) != want {
		t.Errorf("unexpected announcement:\n got %s\nwant %s", body, want)
	}
}

func TestRegistrar_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("closed")}
	r := NewRegistrar(pub, "EchoExchange", []Route{{Intents: "a", DataTypes: "b"}}, nil)

	n, err := r.RegisterRoutes(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 0 {
		t.Errorf("expected 0 registered, got %d", n)
	}
}
