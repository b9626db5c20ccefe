package jsonrpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records dispatch activity as Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	messages             *prometheus.CounterVec
	responses            *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	invocationDuration   *prometheus.HistogramVec
	connections          prometheus.Gauge
}

const metricsNamespace = "jsonrpc"

// Message kinds used as the "kind" label of the messages counter.
const (
	kindRequest      = "request"
	kindNotification = "notification"
	kindBatch        = "batch"
	kindInvalid      = "invalid"
)

// NewMetrics creates the collectors and registers them with reg. A nil reg leaves them
// unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "dispatch",
				Name:      "messages_total",
				Help:      "Inbound messages by kind.",
			},
			[]string{"kind"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "dispatch",
				Name:      "responses_total",
				Help:      "Outbound responses by error code, \"0\" for success.",
			},
			[]string{"code"},
		),
		notificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "dispatch",
				Name:      "notification_failures_total",
				Help:      "Notifications that failed validation or execution.",
			},
			[]string{"reason"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "capability",
				Name:      "invocation_duration_seconds",
				Help:      "Capability invocation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"capability", "success"},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "server",
				Name:      "connections",
				Help:      "Currently served connections.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.responses, m.notificationFailures, m.invocationDuration, m.connections)
	}
	return m
}

func (m *Metrics) recordMessage(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordResponse(resp Response) {
	if m == nil {
		return
	}
	code := 0
	if resp.Error != nil {
		code = resp.Error.Code
	}
	m.responses.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) recordNotificationFailure(reason string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordInvocation(capability string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.invocationDuration.WithLabelValues(capability, strconv.FormatBool(err == nil)).Observe(duration.Seconds())
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
