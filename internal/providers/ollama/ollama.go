// Package ollama registers a local Ollama server through its OpenAI-compatible API.
package ollama

import (
	"llmgate/internal/core"
	"llmgate/internal/credentials"
	"llmgate/internal/providers"
	"llmgate/internal/providers/openai"
)

// Registration provides factory registration for the Ollama provider.
var Registration = providers.Registration{
	Type: "ollama",
	New:  New,
}

const (
	defaultBaseURL = "http://localhost:11434/v1"
	// placeholderKey is sent when no key is configured. Ollama ignores it
	// but the OpenAI-compatible endpoint expects an Authorization header.
	placeholderKey = "ollama"
)

// New creates an Ollama provider. A configured key, for example for a
// reverse proxy in front of Ollama, takes precedence over the placeholder.
func New(opts providers.ProviderOptions) core.Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Key == "" {
		opts.Key = "ollama"
	}
	fallback := credentials.Static{opts.Key: placeholderKey}
	if opts.Credentials == nil {
		opts.Credentials = fallback
	} else {
		opts.Credentials = credentials.Chain{opts.Credentials, fallback}
	}
	return openai.New(opts)
}
