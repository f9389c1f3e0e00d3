// Package openai provides OpenAI API integration for the LLM gateway.
// Any endpoint that speaks the OpenAI chat completions protocol can be
// registered with type "openai" and its own base_url.
package openai

import (
	"context"
	"log/slog"
	"net/http"

	"llmgate/internal/core"
	"llmgate/internal/credentials"
	"llmgate/internal/llmclient"
	"llmgate/internal/providers"
	"llmgate/internal/streaming"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New:  New,
}

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultKey     = "openai"
	chatEndpoint   = "/chat/completions"
)

// Provider implements the core.Provider interface for OpenAI
type Provider struct {
	key            string
	client         *llmclient.Client
	credentials    credentials.Provider
	logger         *slog.Logger
	onStreamFinish func(streaming.Summary)
}

// New creates a new OpenAI provider.
func New(opts providers.ProviderOptions) core.Provider {
	return NewWithHTTPClient(opts.HTTPClient, opts)
}

// NewWithHTTPClient creates a new OpenAI provider with a custom HTTP client.
// If httpClient is nil, the shared default client is used.
func NewWithHTTPClient(httpClient *http.Client, opts providers.ProviderOptions) *Provider {
	key := opts.Key
	if key == "" {
		key = defaultKey
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("provider", key)
	}
	p := &Provider{
		key:            key,
		credentials:    opts.Credentials,
		logger:         logger,
		onStreamFinish: opts.OnStreamFinish,
	}

	baseURL := defaultBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	cfg := llmclient.Config{
		ProviderName: key,
		BaseURL:      baseURL,
		Hooks:        opts.Hooks,
	}
	p.client = llmclient.NewWithHTTPClient(httpClient, cfg, p.setHeaders)
	return p
}

// SetBaseURL allows configuring a custom base URL for the provider
func (p *Provider) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

// BaseURL returns the endpoint requests are sent to.
func (p *Provider) BaseURL() string {
	return p.client.BaseURL()
}

// setHeaders attaches the credential, resolved on every call.
func (p *Provider) setHeaders(req *http.Request) error {
	if p.credentials == nil {
		return core.NewMissingCredentialError(p.key, "no credential provider configured")
	}
	apiKey, err := p.credentials.Credential(p.key)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	// Forward request ID if present in context using OpenAI's X-Client-Request-Id header.
	// OpenAI requires ASCII-only characters and max 512 bytes, otherwise returns 400.
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
	return nil
}

// isValidClientRequestID checks if the request ID is valid for OpenAI's X-Client-Request-Id header.
// OpenAI requires: ASCII characters only, max 512 characters.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// ChatCompletion sends a chat completion request and waits for the full response
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if req.IsStreaming() {
		req = req.WithModel(req.Model)
		req.Stream = nil
	}

	var resp core.ChatResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:      http.MethodPost,
		Endpoint:    chatEndpoint,
		Body:        req,
		ExtraParams: req.ExtraParams,
		Model:       req.Model,
		Check:       core.CheckResponseShape,
	}, &resp)
	if err != nil {
		return nil, err
	}

	resp.Provider = p.key
	if resp.Model == "" {
		resp.Model = req.Model
	}
	resp.Usage.Normalize()
	return &resp, nil
}

// StreamChatCompletion opens an event stream. The caller must close the returned stream.
func (p *Provider) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	streamReq := req.WithStreaming()
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:      http.MethodPost,
		Endpoint:    chatEndpoint,
		Body:        streamReq,
		ExtraParams: streamReq.ExtraParams,
		Model:       streamReq.Model,
	})
	if err != nil {
		return nil, err
	}

	return streaming.New(body, streaming.Options{
		Provider: p.key,
		Model:    req.Model,
		Framing:  streaming.SSEFraming,
		Logger:   p.logger,
		OnFinish: p.onStreamFinish,
	}), nil
}
