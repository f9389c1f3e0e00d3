// Package observability exports Prometheus metrics for upstream provider
// calls and stream outcomes.
package observability

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"llmgate/internal/core"
	"llmgate/internal/llmclient"
	"llmgate/internal/streaming"
)

// Metrics holds the gateway's collectors. Labels are limited to the
// configured provider key and fixed enums; the model name is caller input
// and is left to logs.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	inFlight       *prometheus.GaugeVec
	streams        *prometheus.CounterVec
	streamChunks   *prometheus.HistogramVec
	streamWarnings *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmgate_requests_total",
			Help: "Upstream provider calls by outcome",
		}, []string{"provider", "endpoint", "stream", "status", "error_type"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmgate_request_duration_seconds",
			Help:    "Time until the upstream response status is known",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "stream"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llmgate_requests_in_flight",
			Help: "Upstream provider calls waiting for a response status",
		}, []string{"provider"}),
		streams: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmgate_streams_total",
			Help: "Finished chunk streams by final state",
		}, []string{"provider", "state", "abandoned"}),
		streamChunks: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmgate_stream_chunks",
			Help:    "Chunks delivered per stream",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"provider"}),
		streamWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmgate_stream_decode_warnings_total",
			Help: "Streams that ended with an incomplete trailing line",
		}, []string{"provider"}),
	}
}

// Hooks returns llmclient hooks that record upstream calls.
func (m *Metrics) Hooks() llmclient.Hooks {
	return llmclient.Hooks{
		OnRequestStart: func(ctx context.Context, info llmclient.RequestInfo) context.Context {
			m.inFlight.WithLabelValues(info.Provider).Inc()
			return ctx
		},
		OnRequestEnd: func(_ context.Context, info llmclient.ResponseInfo) {
			m.inFlight.WithLabelValues(info.Provider).Dec()

			stream := strconv.FormatBool(info.Stream)
			status := "error"
			if info.StatusCode > 0 {
				status = strconv.Itoa(info.StatusCode)
			}
			m.requests.WithLabelValues(info.Provider, info.Endpoint, stream, status, errorType(info.Err)).Inc()
			m.duration.WithLabelValues(info.Provider, stream).Observe(info.Duration.Seconds())
		},
	}
}

// ObserveStream records a stream outcome. It matches the streaming.Options.OnFinish signature.
func (m *Metrics) ObserveStream(s streaming.Summary) {
	m.streams.WithLabelValues(s.Provider, s.State.String(), strconv.FormatBool(s.Abandoned)).Inc()
	m.streamChunks.WithLabelValues(s.Provider).Observe(float64(s.Chunks))
	if s.Warning != nil {
		m.streamWarnings.WithLabelValues(s.Provider).Inc()
	}
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return string(gatewayErr.Type)
	}
	return "unknown"
}
