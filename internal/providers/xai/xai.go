// Package xai registers xAI (Grok), served through its OpenAI-compatible API.
package xai

import (
	"llmgate/internal/core"
	"llmgate/internal/providers"
	"llmgate/internal/providers/openai"
)

// Registration provides factory registration for the xAI provider.
var Registration = providers.Registration{
	Type: "xai",
	New:  New,
}

const defaultBaseURL = "https://api.x.ai/v1"

// New creates an xAI provider.
func New(opts providers.ProviderOptions) core.Provider {
	if opts.Key == "" {
		opts.Key = "xai"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	return openai.New(opts)
}
