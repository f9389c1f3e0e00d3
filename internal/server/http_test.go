package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmgate/internal/core"
)

func TestRequestIDMiddleware(t *testing.T) {
	mock := &mockGateway{}
	srv := New(mock, nil, nil)

	t.Run("generates request ID when missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if got == "" {
			t.Fatal("expected X-Request-ID in response header, got empty")
		}
		// Validate UUID format (8-4-4-4-12 hex digits)
		if len(got) != 36 {
			t.Errorf("expected UUID (36 chars), got %q (%d chars)", got, len(got))
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "my-custom-id")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		// Request header must not be overwritten
		got := req.Header.Get("X-Request-ID")
		if got != "my-custom-id" {
			t.Errorf("expected request header to be preserved as %q, got %q", "my-custom-id", got)
		}

		// Response header must echo the client-provided ID back
		respID := rec.Header().Get("X-Request-ID")
		if respID != "my-custom-id" {
			t.Errorf("expected response header X-Request-ID to be %q, got %q", "my-custom-id", respID)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		config         *Config
		requestPath    string
		expectedStatus int
		expectBody     string // substring to check in response body
	}{
		{
			name: "metrics enabled - default endpoint accessible",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines", // Standard Go runtime metric
		},
		{
			name: "metrics enabled - empty endpoint defaults to /metrics",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name: "metrics disabled - endpoint returns 404",
			config: &Config{
				MetricsEnabled:  false,
				MetricsEndpoint: "/metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "nil config - metrics disabled by default",
			config:         nil,
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "custom metrics endpoint path",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/custom-metrics",
			},
			requestPath:    "/custom-metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name: "custom endpoint - default path returns 404",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/custom-metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "metrics endpoint with nested path",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/api/v1/metrics",
			},
			requestPath:    "/api/v1/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockGateway{}
			srv := New(mock, nil, tt.config)

			req := httptest.NewRequest(http.MethodGet, tt.requestPath, nil)
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}

			if tt.expectBody != "" && !strings.Contains(rec.Body.String(), tt.expectBody) {
				t.Errorf("expected body to contain %q, got: %s", tt.expectBody, rec.Body.String())
			}
		})
	}
}

func TestMetricsEndpointReturnsPrometheusFormat(t *testing.T) {
	mock := &mockGateway{}
	srv := New(mock, nil, &Config{
		MetricsEnabled:  true,
		MetricsEndpoint: "/metrics",
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()

	// Check for Prometheus text format indicators
	// Prometheus metrics should contain HELP and TYPE comments
	if !strings.Contains(body, "# HELP") {
		t.Error("response should contain Prometheus HELP comments")
	}
	if !strings.Contains(body, "# TYPE") {
		t.Error("response should contain Prometheus TYPE comments")
	}

	// Check for standard Go runtime metrics that are always present
	standardMetrics := []string{
		"go_goroutines",
		"go_gc_duration_seconds",
		"go_memstats_alloc_bytes",
		"process_cpu_seconds_total",
	}

	for _, metric := range standardMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("response should contain standard metric %q", metric)
		}
	}

	// Check Content-Type header
	contentType := rec.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("expected Content-Type to contain text/plain, got %s", contentType)
	}
}

func TestServerWithMasterKeyAndMetrics(t *testing.T) {
	mock := &mockGateway{}
	srv := New(mock, nil, &Config{
		MasterKey:       "test-secret-key",
		MetricsEnabled:  true,
		MetricsEndpoint: "/metrics",
	})

	t.Run("metrics endpoint is public even when master key is set", func(t *testing.T) {
		// Metrics endpoint should be accessible without auth for Prometheus scraping
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		// Should return 200 - metrics is public for load balancers and monitoring
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200 for public metrics endpoint, got %d", rec.Code)
		}
	})

	t.Run("health endpoint is public even when master key is set", func(t *testing.T) {
		// Health endpoint should be accessible without auth for load balancer health checks
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		// Should return 200 - health is public for load balancers
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200 for public health endpoint, got %d", rec.Code)
		}
	})

	t.Run("API endpoints require auth when master key is set", func(t *testing.T) {
		// API endpoints should require auth
		req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		// Should return 401 - API requires auth
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401 for protected API endpoint, got %d", rec.Code)
		}
	})

	t.Run("API endpoints accessible with valid auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
		req.Header.Set("Authorization", "Bearer test-secret-key")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		// Should return 200 with valid auth
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200 with valid auth, got %d", rec.Code)
		}
	})
}

func TestHealthEndpointAlwaysAvailable(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "nil config",
			config: nil,
		},
		{
			name: "metrics disabled",
			config: &Config{
				MetricsEnabled: false,
			},
		},
		{
			name: "metrics enabled",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/metrics",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockGateway{}
			srv := New(mock, nil, tt.config)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rec.Code)
			}
		})
	}
}

func TestRequestIDReachesGateway(t *testing.T) {
	var seen string
	e := echo.New()
	e.Use(RequestIDMiddleware())
	e.GET("/", func(c echo.Context) error {
		seen = core.GetRequestID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
}

func TestMetricsEndpointCustomGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "llmgate_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := New(&mockGateway{}, nil, &Config{MetricsEnabled: true, MetricsGatherer: reg})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "llmgate_test_total 1")
	assert.NotContains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsRoute(t *testing.T) {
	tests := []struct {
		cfg  *Config
		want string
	}{
		{nil, "/metrics"},
		{&Config{}, "/metrics"},
		{&Config{MetricsEndpoint: "stats"}, "/stats"},
		{&Config{MetricsEndpoint: "/a/b/../c"}, "/a/c"},
		{&Config{MetricsEndpoint: "/v1/chat/completions"}, "/metrics"},
		{&Config{MetricsEndpoint: "/health"}, "/metrics"},
		{&Config{MetricsEndpoint: "/"}, "/metrics"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricsRoute(tt.cfg))
	}
}
