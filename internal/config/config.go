// Package config загружает конфигурацию intent-сервиса из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shaiso/sharedintent/internal/mq"
)

// ErrInvalid — значение переменной окружения не удалось разобрать.
var ErrInvalid = errors.New("invalid configuration")

// Значения по умолчанию.
const (
	DefaultMetricsPort = "8090"
	DefaultPrefetch    = 1
)

// Config — конфигурация процесса.
type Config struct {
	// ServiceName — имя сервиса (SERVICE_NAME). Из него выводятся
	// имена exchange и queue.
	ServiceName string

	// Broker — параметры подключения к RabbitMQ.
	Broker mq.Config

	// DeadLetterExchange — DLX для собственной очереди (RABBIT_DEAD_LETTER_EXCHANGE).
	DeadLetterExchange string

	// Prefetch — prefetch consumer'а (RABBIT_PREFETCH).
	Prefetch int

	// MetricsPort — порт HTTP для /healthz и /metrics (METRICS_PORT).
	MetricsPort string

	// DBURL — DSN PostgreSQL для аудита (DB_URL). Пусто — аудит выключен.
	DBURL string
}

// Load читает конфигурацию из окружения.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: os.Getenv("SERVICE_NAME"),
		Broker: mq.Config{
			Host:     getenv("RABBIT_HOSTNAME", mq.DefaultHost),
			Vhost:    getenv("RABBIT_VHOST", mq.DefaultVhost),
			Username: getenv("RABBIT_USER", mq.DefaultUser),
			Password: getenv("RABBIT_PASS", mq.DefaultPassword),
		},
		DeadLetterExchange: os.Getenv("RABBIT_DEAD_LETTER_EXCHANGE"),
		MetricsPort:        getenv("METRICS_PORT", DefaultMetricsPort),
		DBURL:              os.Getenv("DB_URL"),
	}

	var err error

	if cfg.Broker.Port, err = intEnv("RABBIT_PORT", mq.DefaultPort); err != nil {
		return nil, err
	}
	if cfg.Prefetch, err = intEnv("RABBIT_PREFETCH", DefaultPrefetch); err != nil {
		return nil, err
	}
	if cfg.Broker.ConnectTimeout, err = durationEnv("RABBIT_CONNECT_TIMEOUT", mq.DefaultConnectTimeout); err != nil {
		return nil, err
	}
	if cfg.Broker.RetryInterval, err = durationEnv("RABBIT_RETRY_INTERVAL", mq.DefaultRetryInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет поля, обязательные для запуска сервиса.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: SERVICE_NAME is required", ErrInvalid)
	}
	if c.Prefetch <= 0 {
		return fmt.Errorf("%w: RABBIT_PREFETCH must be positive", ErrInvalid)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, key, v, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, key, v, err)
	}
	return d, nil
}
