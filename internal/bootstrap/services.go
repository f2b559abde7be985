// Package bootstrap wires the registry client, resolver, orchestrator and
// event bus from a loaded configuration. It is shared by the server and the CLI.
package bootstrap

import (
	"fmt"

	"github.com/chis/regview/internal/catalog"
	"github.com/chis/regview/internal/config"
	"github.com/chis/regview/internal/events"
	"github.com/chis/regview/internal/imageinfo"
	"github.com/chis/regview/internal/logging"
	"github.com/chis/regview/internal/registry"
)

// ServiceDependencies holds all initialized service dependencies.
type ServiceDependencies struct {
	Config       *config.Config
	Client       *registry.HTTPClient
	Resolver     *imageinfo.Resolver
	Orchestrator *catalog.Orchestrator
	EventBus     *events.Bus
	Logger       *logging.Logger

	// Refresher is nil unless InitOptions.WithRefresher is set.
	Refresher *catalog.Refresher
}

// InitOptions configures service initialization behavior.
type InitOptions struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// Logger defaults to logging.Default().
	Logger *logging.Logger

	// WithRefresher builds a background refresher using refresh.interval.
	WithRefresher bool

	// Verbose logs each initialization step.
	Verbose bool
}

// InitializeServices validates the configuration and builds all service dependencies.
// Returns ServiceDependencies and a cleanup function that should be deferred.
func InitializeServices(opts InitOptions) (*ServiceDependencies, func(), error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	result := cfg.Validate()
	for _, warning := range result.Warnings {
		logger.Warn("Config: %s", warning)
	}
	if err := result.Err(); err != nil {
		return nil, nil, err
	}

	deps := &ServiceDependencies{Config: cfg, Logger: logger}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if opts.Verbose {
		logger.Info("Initializing registry client for %s...", cfg.Registry.APIURL)
	}
	client := registry.NewHTTPClient(&registry.RegistryConfig{
		BaseURL:        cfg.Registry.APIURL,
		Headers:        cfg.Registry.Headers,
		Insecure:       cfg.Registry.Insecure,
		TimeoutSeconds: cfg.TimeoutSeconds(),
	})
	client.SetLogger(logger)
	deps.Client = client
	cleanups = append(cleanups, client.Close)

	deps.Resolver = imageinfo.NewResolver(client)
	deps.Resolver.SetLogger(logger)

	deps.EventBus = events.NewBus()

	deps.Orchestrator = catalog.New(client, deps.Resolver, catalog.Options{
		MaxConcurrency:      cfg.Refresh.Concurrency,
		DetailLimit:         cfg.Refresh.DetailLimit,
		ConnectivityMessage: catalog.ConnectivityMessage(cfg.Registry.URL),
		Coalesce:            cfg.Refresh.Coalesce,
		EventBus:            deps.EventBus,
		Logger:              logger,
	})
	if opts.Verbose {
		logger.Info("Catalog ready (concurrency %d, detail limit %d)", cfg.Refresh.Concurrency, cfg.Refresh.DetailLimit)
	}

	if opts.WithRefresher {
		deps.Refresher = catalog.NewRefresher(deps.Orchestrator, cfg.Refresh.Interval)
		cleanups = append(cleanups, deps.Refresher.Stop)
	}

	return deps, cleanup, nil
}
