// Package groq registers Groq, served through its OpenAI-compatible API.
package groq

import (
	"llmgate/internal/core"
	"llmgate/internal/providers"
	"llmgate/internal/providers/openai"
)

// Registration provides factory registration for the Groq provider.
var Registration = providers.Registration{
	Type: "groq",
	New:  New,
}

const defaultBaseURL = "https://api.groq.com/openai/v1"

// New creates a Groq provider.
func New(opts providers.ProviderOptions) core.Provider {
	if opts.Key == "" {
		opts.Key = "groq"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	return openai.New(opts)
}
