// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Body size limit bounds accepted by ValidateBodySizeLimit.
const (
	MinBodySizeLimit     int64 = 1024
	MaxBodySizeLimit     int64 = 100 * 1024 * 1024
	DefaultBodySizeLimit int64 = 10 * 1024 * 1024
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	HTTP      HTTPConfig                `yaml:"http"`
	Logging   LogConfig                 `yaml:"logging"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// MasterKey, when set, is required as a Bearer token on every /v1 route.
	MasterKey string `yaml:"master_key"`
	// BodySizeLimit accepts plain bytes or K/M suffixes, e.g. "10M".
	BodySizeLimit string `yaml:"body_size_limit"`
}

// HTTPConfig holds upstream HTTP client timeouts, in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is pretty, json or auto (pretty on a terminal).
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// ProviderConfig holds one provider entry. The map key is the provider key
// used as the model prefix.
type ProviderConfig struct {
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable read at call time when
	// APIKey is empty. Defaults to <KEY>_API_KEY.
	APIKeyEnv string `yaml:"api_key_env"`
}

// LoadResult is the outcome of Load
type LoadResult struct {
	Config *Config
	// ConfigFile is the YAML file that was read, empty when none was found.
	ConfigFile string
	// DotEnvLoaded reports whether a .env file was applied.
	DotEnvLoaded bool
}

// knownProviderEnvs maps well-known provider keys to their environment variables.
// Entries other than openai are added only when one of their variables is set.
var knownProviderEnvs = []struct {
	name         string
	providerType string
	apiKeyEnv    string
	baseURLEnv   string
	always       bool
}{
	{"openai", "openai", "OPENAI_API_KEY", "OPENAI_BASE_URL", true},
	{"gemini", "gemini", "GEMINI_API_KEY", "GEMINI_BASE_URL", false},
	{"groq", "groq", "GROQ_API_KEY", "GROQ_BASE_URL", false},
	{"xai", "xai", "XAI_API_KEY", "XAI_BASE_URL", false},
	{"ollama", "ollama", "OLLAMA_API_KEY", "OLLAMA_BASE_URL", false},
}

// configPaths are tried in order when LLMGATE_CONFIG is unset.
var configPaths = []string{"config.yaml", "config/config.yaml"}

// Load reads configuration from .env, an optional YAML file and the environment.
// Real environment variables always win over .env values.
func Load() (*LoadResult, error) {
	result := &LoadResult{}
	if err := godotenv.Load(); err == nil {
		result.DotEnvLoaded = true
	}

	cfg := buildDefaultConfig()

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := readConfigFile(path, cfg); err != nil {
			return nil, err
		}
		result.ConfigFile = path
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyProviderEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	result.Config = cfg
	return result, nil
}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		HTTP: HTTPConfig{
			Timeout:               600,
			ResponseHeaderTimeout: 600,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Providers: map[string]ProviderConfig{},
	}
}

func findConfigFile() (string, error) {
	if path := os.Getenv("LLMGATE_CONFIG"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file from LLMGATE_CONFIG: %w", err)
		}
		return path, nil
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// readConfigFile decodes path over cfg, expanding ${VAR} placeholders first.
func readConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	expandNode(&root)
	if err := root.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	return nil
}

// expandNode expands placeholders in every scalar of the document.
func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		n.Value = expandString(n.Value)
		return
	}
	for _, child := range n.Content {
		expandNode(child)
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. Unset variables without
// a default are left untouched so that they can be detected later.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides applies the documented environment variables over cfg.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LLMGATE_MASTER_KEY"); v != "" {
		cfg.Server.MasterKey = v
	}
	if v := os.Getenv("BODY_SIZE_LIMIT"); v != "" {
		cfg.Server.BodySizeLimit = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("METRICS_ENDPOINT"); v != "" {
		cfg.Metrics.Endpoint = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED %q: %w", v, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	if err := envSeconds("HTTP_TIMEOUT", &cfg.HTTP.Timeout); err != nil {
		return err
	}
	return envSeconds("HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout)
}

func envSeconds(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s %q: must be a non-negative number of seconds", name, v)
	}
	*dst = n
	return nil
}

// applyProviderEnvVars registers well-known providers and fills defaults.
// The openai provider is always present; its key is resolved when a call is made.
// Other well-known providers are discovered from their environment variables.
func applyProviderEnvVars(cfg *Config) {
	for _, kp := range knownProviderEnvs {
		p, exists := cfg.Providers[kp.name]
		if !exists {
			if !kp.always && os.Getenv(kp.apiKeyEnv) == "" && os.Getenv(kp.baseURLEnv) == "" {
				continue
			}
			p = ProviderConfig{Type: kp.providerType}
		}
		if baseURL := os.Getenv(kp.baseURLEnv); baseURL != "" {
			p.BaseURL = baseURL
		}
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = kp.apiKeyEnv
		}
		cfg.Providers[kp.name] = p
	}

	for name, p := range cfg.Providers {
		if p.Type == "" {
			p.Type = name
		}
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = DefaultAPIKeyEnv(name)
		}
		// An unresolved placeholder is treated as no key.
		if strings.Contains(p.APIKey, "${") {
			p.APIKey = ""
		}
		cfg.Providers[name] = p
	}
}

// DefaultAPIKeyEnv returns the conventional variable for a provider key,
// e.g. "azure-east" -> "AZURE_EAST_API_KEY".
func DefaultAPIKeyEnv(providerKey string) string {
	upper := strings.ToUpper(providerKey)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return upper + "_API_KEY"
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "pretty", "json":
	default:
		return fmt.Errorf("logging.format must be auto, pretty or json, got %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		return fmt.Errorf("metrics.endpoint must start with /, got %q", c.Metrics.Endpoint)
	}
	for name, p := range c.Providers {
		if name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("provider key %q must be non-empty and must not contain '/'", name)
		}
		if p.BaseURL != "" && !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			return fmt.Errorf("provider %s: base_url must be an http(s) URL, got %q", name, p.BaseURL)
		}
	}
	return nil
}

var bodySizePattern = regexp.MustCompile(`^(\d+)([KkMm][Bb]?)?$`)

// ValidateBodySizeLimit checks a body size limit string. Empty means the default.
func ValidateBodySizeLimit(s string) error {
	_, err := ParseBodySizeLimit(s)
	return err
}

// ParseBodySizeLimit converts "10M", "512K" or a plain byte count to bytes.
// Empty returns DefaultBodySizeLimit.
func ParseBodySizeLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultBodySizeLimit, nil
	}
	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid body size limit %q: use bytes or a K/M suffix", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid body size limit %q: %w", s, err)
	}
	switch strings.ToUpper(strings.TrimSuffix(strings.ToUpper(m[2]), "B")) {
	case "K":
		n *= 1024
	case "M":
		n *= 1024 * 1024
	}
	if n < MinBodySizeLimit || n > MaxBodySizeLimit {
		return 0, fmt.Errorf("body size limit %q out of range (1K to 100M)", s)
	}
	return n, nil
}
