package httpclient

import (
	"net/http"
	"testing"
	"time"

	"llmgate/config"
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name        string
		in          config.HTTPConfig
		wantTimeout time.Duration
		wantHeader  time.Duration
	}{
		{"explicit values", config.HTTPConfig{Timeout: 30, ResponseHeaderTimeout: 5}, 30 * time.Second, 5 * time.Second},
		{"zero timeout disables the overall limit", config.HTTPConfig{Timeout: 0, ResponseHeaderTimeout: 0}, 0, 600 * time.Second},
		{"negative keeps defaults", config.HTTPConfig{Timeout: -1, ResponseHeaderTimeout: -1}, 600 * time.Second, 600 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromConfig(tt.in)
			if got.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", got.Timeout, tt.wantTimeout)
			}
			if got.ResponseHeaderTimeout != tt.wantHeader {
				t.Errorf("ResponseHeaderTimeout = %v, want %v", got.ResponseHeaderTimeout, tt.wantHeader)
			}
		})
	}
}

func TestNewHTTPClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 42 * time.Second
	cfg.ResponseHeaderTimeout = 7 * time.Second

	client := NewHTTPClient(&cfg)
	if client.Timeout != 42*time.Second {
		t.Errorf("Timeout = %v, want 42s", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", client.Transport)
	}
	if transport.ResponseHeaderTimeout != 7*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 7s", transport.ResponseHeaderTimeout)
	}

	if def := NewHTTPClient(nil); def.Timeout != 600*time.Second {
		t.Errorf("default Timeout = %v, want 600s", def.Timeout)
	}
}
