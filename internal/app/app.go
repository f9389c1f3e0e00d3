// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the llmgate server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"llmgate/config"
	"llmgate/internal/credentials"
	"llmgate/internal/gateway"
	"llmgate/internal/httpclient"
	"llmgate/internal/observability"
	"llmgate/internal/providers"
	"llmgate/internal/providers/gemini"
	"llmgate/internal/providers/groq"
	"llmgate/internal/providers/ollama"
	"llmgate/internal/providers/openai"
	"llmgate/internal/providers/xai"
	"llmgate/internal/server"
)

// App represents the main application with all its dependencies.
type App struct {
	config   *config.Config
	registry *providers.Registry
	gateway  *gateway.Gateway
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the result of config.Load.
	AppConfig *config.LoadResult

	// Factory provides the ProviderFactory used to construct provider instances.
	Factory *providers.ProviderFactory

	// Credentials overrides the credential chain built from the provider config.
	Credentials credentials.Provider

	// Metrics is the registry metrics are registered with and served from.
	// Nil uses the Prometheus default registry.
	Metrics *prometheus.Registry
}

// Components are the pieces shared by the server and the CLI.
type Components struct {
	Registry *providers.Registry
	Gateway  *gateway.Gateway
}

// DefaultFactory returns a factory with every built-in provider type registered.
func DefaultFactory() *providers.ProviderFactory {
	factory := providers.NewProviderFactory()
	factory.Add(openai.Registration)
	factory.Add(groq.Registration)
	factory.Add(xai.Registration)
	factory.Add(gemini.Registration)
	factory.Add(ollama.Registration)
	return factory
}

// BuildGateway configures the factory from cfg and builds the provider
// registry and the gateway over it. A nil metrics disables instrumentation.
func BuildGateway(cfg *config.Config, factory *providers.ProviderFactory, creds credentials.Provider, metrics *observability.Metrics) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if factory == nil {
		return nil, errors.New("factory is required")
	}

	clientCfg := httpclient.FromConfig(cfg.HTTP)
	factory.SetHTTPClient(httpclient.NewHTTPClient(&clientCfg))
	if metrics != nil {
		factory.SetHooks(metrics.Hooks())
		factory.SetStreamObserver(metrics.ObserveStream)
	}
	if creds == nil {
		creds = credentials.FromConfig(cfg.Providers)
	}

	registry, err := providers.Build(cfg, factory, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	gw, err := gateway.New(registry)
	if err != nil {
		return nil, err
	}
	return &Components{Registry: registry, Gateway: gw}, nil
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(_ context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}

	appCfg := cfg.AppConfig.Config
	app := &App{config: appCfg}

	var (
		metrics  *observability.Metrics
		gatherer prometheus.Gatherer
	)
	if appCfg.Metrics.Enabled {
		var reg prometheus.Registerer
		if cfg.Metrics != nil {
			reg, gatherer = cfg.Metrics, cfg.Metrics
		}
		metrics = observability.NewMetrics(reg)
	}

	components, err := BuildGateway(appCfg, cfg.Factory, cfg.Credentials, metrics)
	if err != nil {
		return nil, err
	}
	app.registry = components.Registry
	app.gateway = components.Gateway

	bodyLimit, err := config.ParseBodySizeLimit(appCfg.Server.BodySizeLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid body size limit: %w", err)
	}

	app.server = server.New(app.gateway, app.registry, &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   bodyLimit,
		MetricsGatherer: gatherer,
	})

	app.logStartupInfo(cfg.AppConfig)
	return app, nil
}

// Gateway returns the request gateway.
func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

// Registry returns the provider registry.
func (a *App) Registry() *providers.Registry {
	return a.registry
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// is done. Open upstream streams are closed as their handlers return.
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			return fmt.Errorf("server shutdown: %w", err)
		}
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(loaded *config.LoadResult) {
	cfg := a.config

	if loaded.ConfigFile != "" {
		slog.Info("configuration file loaded", "path", loaded.ConfigFile)
	}
	if loaded.DotEnvLoaded {
		slog.Info(".env file loaded")
	}

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: LLMGATE_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set LLMGATE_MASTER_KEY environment variable to secure this gateway")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("providers ready", "keys", a.registry.Keys())
}
