package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/chis/regview/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		port       int
		staticDir  string
		requestLog bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry catalog as a JSON API",
		Long: `Serve the catalog over HTTP. The catalog is refreshed at startup, every
refresh.interval, and on POST /api/refresh. Catalog changes are streamed
on GET /api/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("static-dir") {
				a.cfg.Server.StaticDir = staticDir
			}
			return a.serve(cmd.Context(), requestLog)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides PORT)")
	cmd.Flags().StringVarP(&staticDir, "static-dir", "s", "", "directory containing a built UI (empty to disable)")
	cmd.Flags().BoolVar(&requestLog, "request-log", false, "log every request")
	return cmd
}

// serve runs the API server until ctx is cancelled or the listener fails.
func (a *app) serve(ctx context.Context, requestLog bool) error {
	deps, cleanup, err := a.services(true)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := a.cfg
	logger := a.logger
	logger.Info("Browsing %s at %s", cfg.Registry.Name, cfg.Registry.APIURL)

	server := api.NewServer(api.Config{
		Port:           cfg.Server.Port,
		Orchestrator:   deps.Orchestrator,
		Refresher:      deps.Refresher,
		EventBus:       deps.EventBus,
		RegistryName:   cfg.Registry.Name,
		RegistryURL:    cfg.Registry.URL,
		StaticDir:      cfg.Server.StaticDir,
		RateLimit:      cfg.Server.RateLimit,
		RequestLogging: requestLog,
		Logger:         logger,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	logger.Info("API server running on http://localhost:%d", cfg.Server.Port)
	if cfg.Server.StaticDir != "" {
		logger.Info("UI available at http://localhost:%d/", cfg.Server.Port)
	}
	logger.Info("Available endpoints:")
	logger.Info("  GET    /api/health                   - Service health and registry connectivity")
	logger.Info("  GET    /api/settings                 - Registry display settings")
	logger.Info("  GET    /api/repositories?q=          - Catalog snapshot")
	logger.Info("  POST   /api/refresh                  - Refresh the catalog")
	logger.Info("  GET    /api/tags/{repository}        - Tags of a repository")
	logger.Info("  GET    /api/details/{repository}     - Image info of the first tags")
	logger.Info("  GET    /api/images/{repository:tag}  - Image info of one tag")
	logger.Info("  DELETE /api/images/{repository:tag}  - Delete a tag")
	logger.Info("  GET    /api/events                   - Server-sent events")

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}
