package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "sharedintent"

// Metrics — Prometheus метрики intent-сервиса.
//
// Все методы допускают nil-получатель: без метрик сервис работает так же.
type Metrics struct {
	deliveries *prometheus.CounterVec
	responses  *prometheus.CounterVec
	routes     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	connects   *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Для глобального registry передайте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Processed inbound deliveries by outcome.",
		}, []string{"service", "outcome"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_published_total",
			Help:      "Responses published to the router exchange.",
		}, []string{"service"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "routes_registered_total",
			Help:      "Route declarations announced with add_route.",
		}, []string{"service"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching one delivery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connect_attempts_total",
			Help:      "Broker connection attempts by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.deliveries, m.responses, m.routes, m.duration, m.connects)
	}

	return m
}

// ObserveDelivery учитывает обработанное сообщение.
func (m *Metrics) ObserveDelivery(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(service, outcome).Inc()
	m.duration.WithLabelValues(service).Observe(d.Seconds())
}

// AddResponses учитывает опубликованные ответы.
func (m *Metrics) AddResponses(service string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.responses.WithLabelValues(service).Add(float64(n))
}

// AddRoutes учитывает зарегистрированные маршруты.
func (m *Metrics) AddRoutes(service string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.routes.WithLabelValues(service).Add(float64(n))
}

// ConnectAttempt учитывает попытку подключения к брокеру.
func (m *Metrics) ConnectAttempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.connects.WithLabelValues(result).Inc()
}
