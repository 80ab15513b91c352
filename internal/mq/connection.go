package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"

	"github.com/shaiso/sharedintent/internal/telemetry"
)

// Параметры подключения по умолчанию.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 5672
	DefaultVhost          = "/"
	DefaultUser           = "guest"
	DefaultPassword       = "guest"
	DefaultConnectTimeout = 20 * time.Second
	DefaultRetryInterval  = 500 * time.Millisecond

	// FrameMax — максимальный размер фрейма, согласуемый с брокером.
	FrameMax = 131072
)

// Channel — подмножество методов *amqp.Channel, которым пользуется сервис.
// Позволяет подменять канал в тестах.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// DialFunc открывает AMQP соединение. По умолчанию amqp.DialConfig.
type DialFunc func(url string, cfg amqp.Config) (*amqp.Connection, error)

// Config — параметры подключения к RabbitMQ.
//
// SSL не используется, heartbeat согласуется сервером,
// аутентификация — PLAIN.
type Config struct {
	Host     string
	Port     int
	Vhost    string
	Username string
	Password string

	// ConnectTimeout — общий бюджет на все попытки подключения.
	ConnectTimeout time.Duration

	// RetryInterval — пауза между попытками.
	RetryInterval time.Duration
}

// URI возвращает AMQP URI без учёта SASL (учётные данные передаются отдельно).
func (c Config) URI() amqp.URI {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Port
	if port <= 0 {
		port = DefaultPort
	}
	vhost := c.Vhost
	if vhost == "" {
		vhost = DefaultVhost
	}

	return amqp.URI{
		Scheme:   "amqp",
		Host:     host,
		Port:     port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    vhost,
	}
}

func (c Config) amqpConfig() amqp.Config {
	uri := c.URI()
	return amqp.Config{
		SASL:       []amqp.Authentication{&amqp.PlainAuth{Username: c.Username, Password: c.Password}},
		Vhost:      uri.Vhost,
		FrameSize:  FrameMax,
		Heartbeat:  0, // 0 — берём значение сервера
		Locale:     "en_US",
		Properties: amqp.Table{"product": "sharedintent"},
		Dial:       amqp.DefaultDial(c.connectTimeout()),
	}
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return c.ConnectTimeout
}

func (c Config) retryInterval() time.Duration {
	if c.RetryInterval <= 0 {
		return DefaultRetryInterval
	}
	return c.RetryInterval
}

// Connection — единственное на процесс соединение с RabbitMQ.
//
// Соединение и канал создаются лениво и переиспользуются.
// Close можно вызывать многократно, в том числе до Connect.
type Connection struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	dial    DialFunc

	mu      sync.Mutex
	conn    *amqp.Connection
	channel Channel
	closed  bool
}

// NewConnection создаёт Connection. Сетевое соединение открывается в Connect.
func NewConnection(cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Connection {
	if logger == nil {
		logger = slog.Default()
	}

	return &Connection{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		dial:    amqp.DialConfig,
	}
}

// Connect открывает соединение, если оно ещё не открыто.
//
// Неудачные попытки повторяются с постоянной паузой RetryInterval,
// пока не истечёт ConnectTimeout. По истечении бюджета возвращается
// последняя ошибка подключения (или ErrConnectTimeout, если попыток не было).
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		return err
	}

	c.conn = conn
	c.channel = nil

	uri := c.cfg.URI()
	c.logger.Info("connected to RabbitMQ", "host", uri.Host, "port", uri.Port, "vhost", uri.Vhost)

	return nil
}

// dialWithRetry пытается подключиться, пока не истечёт бюджет времени.
func (c *Connection) dialWithRetry(ctx context.Context) (*amqp.Connection, error) {
	timeout := c.cfg.connectTimeout()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.cfg.URI().String()
	amqpCfg := c.cfg.amqpConfig()

	var (
		conn    *amqp.Connection
		lastErr error
	)

	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(c.cfg.retryInterval()))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		cn, err := c.dial(url, amqpCfg)
		c.metrics.ConnectAttempt(err)
		if err != nil {
			lastErr = err
			c.logger.Error("RabbitMQ connection failed, retrying", "error", err)
			return retry.RetryableError(err)
		}

		conn = cn
		return nil
	})
	if err == nil {
		return conn, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", lastErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	}

	return nil, err
}

// Channel возвращает AMQP канал, открывая его при первом вызове.
func (c *Connection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	if c.channel != nil {
		return c.channel, nil
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c.channel = ch
	return ch, nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		c.channel = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		c.conn = nil
	}

	if len(errs) > 0 {
		return errs[0]
	}

	c.logger.Info("connection closed")
	return nil
}
