// Package metrics exports session activity as Prometheus collectors.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/hydro/internal/stream"
)

const namespace = "hydro"

type Metrics struct {
	streams   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	responses *prometheus.CounterVec
	inFlight  prometheus.Gauge
}

// New registers the session collectors on reg. Sessions to the same host
// share collectors, the in-flight gauge included. A nil reg returns nil, and
// every method of a nil *Metrics is a no-op.
func New(reg prometheus.Registerer, host string) *Metrics {
	if reg == nil {
		return nil
	}
	labels := prometheus.Labels{"host": host}

	m := &Metrics{
		streams: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "stream",
				Name:        "finished_total",
				Help:        "Streams that reached a terminal state.",
				ConstLabels: labels,
			},
			[]string{"method", "state"},
		)),
		duration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "stream",
				Name:        "duration_seconds",
				Help:        "Time from stream open to its terminal state.",
				ConstLabels: labels,
				Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		)),
		responses: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "responses_total",
				Help:        "Responses received, by status code.",
				ConstLabels: labels,
			},
			[]string{"method", "code"},
		)),
		inFlight: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "stream",
				Name:        "in_flight",
				Help:        "Streams currently open to the host.",
				ConstLabels: labels,
			},
		)),
	}
	return m
}

// register adds c to reg, returning the collector already registered under
// the same descriptor when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	return c
}

// StreamOpened counts a registered stream until ObserveStream sees it finish.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// ObserveStream records a finished stream. It matches stream.CompletionHook.
func (m *Metrics) ObserveStream(s stream.Summary) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.streams.WithLabelValues(s.Method, s.State.String()).Inc()
	m.duration.WithLabelValues(s.Method).Observe(s.EndedAt.Sub(s.StartedAt).Seconds())
}

func (m *Metrics) ObserveResponse(method string, status int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
