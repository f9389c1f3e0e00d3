// Package credentials resolves the secret used to authenticate against a provider.
package credentials

import (
	"fmt"
	"os"
	"strings"

	"llmgate/config"
	"llmgate/internal/core"
)

// Provider returns the credential for a provider key.
// It fails with a missing_credential_error when none is set.
type Provider interface {
	Credential(providerKey string) (string, error)
}

// Static serves credentials from a fixed map, typically the api_key values of the config file.
type Static map[string]string

// Credential implements Provider.
func (s Static) Credential(providerKey string) (string, error) {
	if v := strings.TrimSpace(s[providerKey]); v != "" {
		return v, nil
	}
	return "", core.NewMissingCredentialError(providerKey, "no api_key configured")
}

// Env reads credentials from the environment on every call, so a key
// exported after startup is picked up without a restart.
type Env struct {
	// Vars maps provider keys to variable names. Keys not listed use
	// config.DefaultAPIKeyEnv.
	Vars map[string]string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// VarFor returns the variable consulted for providerKey.
func (e *Env) VarFor(providerKey string) string {
	if name := e.Vars[providerKey]; name != "" {
		return name
	}
	return config.DefaultAPIKeyEnv(providerKey)
}

// Credential implements Provider.
func (e *Env) Credential(providerKey string) (string, error) {
	lookup := e.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	name := e.VarFor(providerKey)
	if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return "", core.NewMissingCredentialError(providerKey, fmt.Sprintf("%s is not set", name))
}

// Chain tries each provider in order and returns the first credential found.
type Chain []Provider

// Credential implements Provider. Errors other than a missing credential stop the chain.
func (c Chain) Credential(providerKey string) (string, error) {
	var reasons []string
	for _, p := range c {
		v, err := p.Credential(providerKey)
		if err == nil {
			return v, nil
		}
		if !core.IsErrorType(err, core.ErrorTypeMissingCredential) {
			return "", err
		}
		if gatewayErr, ok := err.(*core.GatewayError); ok {
			reasons = append(reasons, gatewayErr.Message)
		}
	}
	msg := "no credential configured"
	if len(reasons) > 0 {
		msg = strings.Join(reasons, "; ")
	}
	return "", core.NewMissingCredentialError(providerKey, msg)
}

// FromConfig builds the default chain: api_key from the config file first,
// then the provider's api_key_env variable.
func FromConfig(providers map[string]config.ProviderConfig) Provider {
	static := Static{}
	vars := map[string]string{}
	for key, p := range providers {
		if p.APIKey != "" {
			static[key] = p.APIKey
		}
		if p.APIKeyEnv != "" {
			vars[key] = p.APIKeyEnv
		}
	}
	return Chain{static, &Env{Vars: vars}}
}
