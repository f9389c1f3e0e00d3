// Package gemini registers Google Gemini through its OpenAI compatibility endpoint.
package gemini

import (
	"llmgate/internal/core"
	"llmgate/internal/providers"
	"llmgate/internal/providers/openai"
)

// Registration provides factory registration for the Gemini provider.
var Registration = providers.Registration{
	Type: "gemini",
	New:  New,
}

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// New creates a Gemini provider.
func New(opts providers.ProviderOptions) core.Provider {
	if opts.Key == "" {
		opts.Key = "gemini"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	return openai.New(opts)
}
