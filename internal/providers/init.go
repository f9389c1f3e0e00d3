package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"llmgate/config"
	"llmgate/internal/credentials"
)

// Build creates a client for every configured provider and returns them as a registry.
// A provider whose type is not registered with the factory is logged and skipped;
// an empty result is an error.
func Build(cfg *config.Config, factory *ProviderFactory, creds credentials.Provider) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("provider factory is required")
	}
	if creds == nil {
		creds = credentials.FromConfig(cfg.Providers)
	}

	// Sort provider names for deterministic initialization order
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		pCfg := cfg.Providers[name]
		p, err := factory.Create(name, pCfg, creds)
		if err != nil {
			slog.Error("failed to initialize provider",
				"name", name,
				"type", pCfg.Type,
				"error", err)
			continue
		}
		entries = append(entries, Entry{Key: name, Type: pCfg.Type, Provider: p})
		slog.Info("provider initialized", "name", name, "type", pCfg.Type, "base_url", pCfg.BaseURL)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no providers were successfully initialized")
	}
	return NewRegistry(entries...)
}
