package observability

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmgate/internal/core"
	"llmgate/internal/llmclient"
	"llmgate/internal/streaming"
)

// sample returns the value of the series of family name whose labels include want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			matched := true
			for k, v := range want {
				if labels[k] != v {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), true
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), true
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount()), true
			}
		}
	}
	return 0, false
}

func TestHooks_RecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	hooks := NewMetrics(reg).Hooks()

	info := llmclient.RequestInfo{Provider: "openai", Model: "gpt-4o", Method: http.MethodPost, Endpoint: "/chat/completions"}

	ctx := hooks.OnRequestStart(context.Background(), info)
	inFlight, ok := sample(t, reg, "llmgate_requests_in_flight", map[string]string{"provider": "openai"})
	require.True(t, ok)
	assert.Equal(t, 1.0, inFlight)

	hooks.OnRequestEnd(ctx, llmclient.ResponseInfo{RequestInfo: info, StatusCode: http.StatusOK, Duration: 120 * time.Millisecond})
	hooks.OnRequestStart(ctx, info)
	hooks.OnRequestEnd(ctx, llmclient.ResponseInfo{
		RequestInfo: info,
		StatusCode:  http.StatusTooManyRequests,
		Err:         core.NewProviderError("openai", http.StatusTooManyRequests, "slow down", nil),
	})
	hooks.OnRequestStart(ctx, info)
	hooks.OnRequestEnd(ctx, llmclient.ResponseInfo{RequestInfo: info, Err: errors.New("dial tcp: refused")})

	ok200, _ := sample(t, reg, "llmgate_requests_total", map[string]string{"status": "200", "error_type": ""})
	assert.Equal(t, 1.0, ok200)

	limited, _ := sample(t, reg, "llmgate_requests_total", map[string]string{"status": "429", "error_type": "provider_error"})
	assert.Equal(t, 1.0, limited)

	failed, _ := sample(t, reg, "llmgate_requests_total", map[string]string{"status": "error", "error_type": "unknown"})
	assert.Equal(t, 1.0, failed)

	inFlight, _ = sample(t, reg, "llmgate_requests_in_flight", map[string]string{"provider": "openai"})
	assert.Zero(t, inFlight)

	observed, _ := sample(t, reg, "llmgate_request_duration_seconds", map[string]string{"provider": "openai", "stream": "false"})
	assert.Equal(t, 3.0, observed)
}

func TestObserveStream(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveStream(streaming.Summary{Provider: "openai", Model: "gpt-4o", State: streaming.StateDone, Chunks: 12})
	m.ObserveStream(streaming.Summary{
		Provider: "openai",
		Model:    "gpt-4o",
		State:    streaming.StateDone,
		Chunks:   3,
		Warning:  &streaming.DecodeWarning{Trailing: []byte(`data: {"id"`)},
	})
	m.ObserveStream(streaming.Summary{Provider: "openai", Model: "gpt-4o", State: streaming.StateAwaitingEvent, Chunks: 1, Abandoned: true})

	done, _ := sample(t, reg, "llmgate_streams_total", map[string]string{"state": "done", "abandoned": "false"})
	assert.Equal(t, 2.0, done)

	abandoned, _ := sample(t, reg, "llmgate_streams_total", map[string]string{"abandoned": "true"})
	assert.Equal(t, 1.0, abandoned)

	warnings, _ := sample(t, reg, "llmgate_stream_decode_warnings_total", map[string]string{"provider": "openai"})
	assert.Equal(t, 1.0, warnings)

	streams, _ := sample(t, reg, "llmgate_stream_chunks", map[string]string{"provider": "openai"})
	assert.Equal(t, 3.0, streams)
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestHooks_ModelIsNotALabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	hooks := m.Hooks()

	for _, model := range []string{"gpt-4o", "made-up-1", "made-up-2"} {
		info := llmclient.RequestInfo{Provider: "openai", Model: model, Endpoint: "/chat/completions"}
		ctx := hooks.OnRequestStart(context.Background(), info)
		hooks.OnRequestEnd(ctx, llmclient.ResponseInfo{RequestInfo: info, StatusCode: http.StatusOK})
		m.ObserveStream(streaming.Summary{Provider: "openai", Model: model, State: streaming.StateDone})
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		assert.Len(t, mf.GetMetric(), 1, "%s should have one series", mf.GetName())
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			assert.NotEqual(t, "model", lp.GetName(), mf.GetName())
		}
	}

	total, _ := sample(t, reg, "llmgate_requests_total", map[string]string{"provider": "openai", "status": "200"})
	assert.Equal(t, 3.0, total)
}

func TestHooks_CountsDecodeErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	hooks := NewMetrics(reg).Hooks()

	info := llmclient.RequestInfo{Provider: "openai", Endpoint: "/chat/completions"}
	ctx := hooks.OnRequestStart(context.Background(), info)
	hooks.OnRequestEnd(ctx, llmclient.ResponseInfo{
		RequestInfo: info,
		StatusCode:  http.StatusOK,
		Err:         core.NewDecodeError("openai", "unexpected response", []byte(`null`), nil),
	})

	decodeErrors, ok := sample(t, reg, "llmgate_requests_total", map[string]string{"status": "200", "error_type": "decode_error"})
	require.True(t, ok)
	assert.Equal(t, 1.0, decodeErrors)
}
