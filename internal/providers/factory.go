// Package providers builds provider clients from configuration and holds
// them in an immutable registry keyed by model prefix.
package providers

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"llmgate/config"
	"llmgate/internal/core"
	"llmgate/internal/credentials"
	"llmgate/internal/llmclient"
	"llmgate/internal/streaming"
)

// ProviderOptions is everything a provider constructor receives.
type ProviderOptions struct {
	// Key is the provider key the client is registered under. It labels
	// errors, metrics and chunks.
	Key string
	// BaseURL overrides the provider's default endpoint when set.
	BaseURL     string
	Credentials credentials.Provider
	HTTPClient  *http.Client
	Hooks       llmclient.Hooks
	// OnStreamFinish is called once per stream with its outcome.
	OnStreamFinish func(streaming.Summary)
	Logger         *slog.Logger
}

// Registration describes a provider type that the factory can build.
type Registration struct {
	Type string
	New  func(opts ProviderOptions) core.Provider
}

// ProviderFactory creates providers by type. It is configured once at
// startup and then only read.
type ProviderFactory struct {
	builders       map[string]func(ProviderOptions) core.Provider
	hooks          llmclient.Hooks
	onStreamFinish func(streaming.Summary)
	httpClient     *http.Client
}

// NewProviderFactory creates an empty factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{
		builders: make(map[string]func(ProviderOptions) core.Provider),
	}
}

// Add registers a provider type. A later registration of the same type replaces the earlier one.
func (f *ProviderFactory) Add(r Registration) {
	f.builders[r.Type] = r.New
}

// SetHooks sets the upstream call hooks passed to every provider created afterwards.
func (f *ProviderFactory) SetHooks(hooks llmclient.Hooks) {
	f.hooks = hooks
}

// SetStreamObserver sets the stream outcome callback passed to every provider created afterwards.
func (f *ProviderFactory) SetStreamObserver(fn func(streaming.Summary)) {
	f.onStreamFinish = fn
}

// SetHTTPClient sets the upstream HTTP client shared by providers created afterwards.
func (f *ProviderFactory) SetHTTPClient(c *http.Client) {
	f.httpClient = c
}

// RegisteredTypes returns the registered provider types, sorted.
func (f *ProviderFactory) RegisteredTypes() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create instantiates the provider registered under key.
func (f *ProviderFactory) Create(key string, cfg config.ProviderConfig, creds credentials.Provider) (core.Provider, error) {
	builder, ok := f.builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	p := builder(ProviderOptions{
		Key:            key,
		BaseURL:        cfg.BaseURL,
		Credentials:    creds,
		HTTPClient:     f.httpClient,
		Hooks:          f.hooks,
		OnStreamFinish: f.onStreamFinish,
		Logger:         slog.Default().With("provider", key),
	})
	if p == nil {
		return nil, fmt.Errorf("provider type %s returned no client", cfg.Type)
	}
	return p, nil
}
