package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	JobsEnqueued       *prometheus.CounterVec
	JobsProcessed      *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	EventsPublished    *prometheus.CounterVec
	EventsDelivered    *prometheus.CounterVec
	SocketConnections  prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_jobs_enqueued_total",
			Help: "Generation jobs handed to the broker, by outcome",
		}, []string{"outcome"}),
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_jobs_processed_total",
			Help: "Generation job attempts finished by the worker, by outcome",
		}, []string{"outcome"}),
		GenerationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "content_generation_duration_seconds",
			Help:    "Latency of generation provider calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_events_published_total",
			Help: "Lifecycle events sent to the event bus, by channel and outcome",
		}, []string{"channel", "outcome"}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_events_delivered_total",
			Help: "Lifecycle events written to websocket connections, by event",
		}, []string{"event"}),
		SocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "content_socket_connections",
			Help: "Live authenticated websocket connections",
		}),
	}
}

// Handler exposes the registry for fiber
func (m *Metrics) Handler() fiber.Handler {
	if m == nil {
		return func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) }
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) JobEnqueued(outcome string) {
	if m == nil {
		return
	}
	m.JobsEnqueued.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobProcessed(outcome string) {
	if m == nil {
		return
	}
	m.JobsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGeneration(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) EventPublished(channel string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublished.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) EventDelivered(event string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EventsDelivered.WithLabelValues(event).Add(float64(n))
}

func (m *Metrics) SocketConnected() {
	if m == nil {
		return
	}
	m.SocketConnections.Inc()
}

func (m *Metrics) SocketDisconnected() {
	if m == nil {
		return
	}
	m.SocketConnections.Dec()
}
