// Package api serves the catalog over HTTP as JSON, streams catalog events
// over server-sent events, and optionally serves a built UI.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chis/regview/internal/catalog"
	"github.com/chis/regview/internal/events"
	"github.com/chis/regview/internal/logging"
)

// Server represents the HTTP API server
type Server struct {
	orchestrator *catalog.Orchestrator
	refresher    *catalog.Refresher
	eventBus     *events.Bus
	httpServer   *http.Server
	handler      http.Handler
	rateLimiter  *PathRateLimiter
	logger       *logging.Logger
	registryName string
	registryURL  string
}

// Config holds configuration for the API server
type Config struct {
	Port         int
	Orchestrator *catalog.Orchestrator

	// Refresher is started and stopped with the server (optional).
	Refresher *catalog.Refresher

	// EventBus feeds /api/events. It should be the bus the orchestrator publishes to.
	EventBus *events.Bus

	// RegistryName and RegistryURL are shown by /api/settings.
	RegistryName string
	RegistryURL  string

	StaticDir string // Directory containing static UI files (optional)

	// RateLimit is requests per minute per client on /api routes; 0 disables it.
	RateLimit int

	// RequestLogging logs every request (can be verbose).
	RequestLogging bool

	Logger *logging.Logger
}

// NewServer creates a new API server with the given configuration
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	eventBus := cfg.EventBus
	if eventBus == nil {
		eventBus = events.NewBus()
	}

	s := &Server{
		orchestrator: cfg.Orchestrator,
		refresher:    cfg.Refresher,
		eventBus:     eventBus,
		logger:       logger.WithField("component", "api"),
		registryName: cfg.RegistryName,
		registryURL:  cfg.RegistryURL,
	}

	if cfg.RateLimit > 0 {
		s.rateLimiter = newServerRateLimiter(cfg.RateLimit)
	} else {
		s.logger.Info("Rate limiting disabled")
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux, cfg.StaticDir)

	// Apply middleware: CORS -> Correlation ID -> Rate Limit (optional) -> Request Logging (optional) -> Handler
	middlewares := []func(http.Handler) http.Handler{
		corsMiddleware,
		CorrelationIDMiddleware,
	}
	if s.rateLimiter != nil {
		middlewares = append(middlewares, PathRateLimitMiddleware(s.rateLimiter))
	}
	if cfg.RequestLogging {
		middlewares = append(middlewares, RequestLoggingMiddleware)
	}
	s.handler = ChainMiddleware(mux, middlewares...)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes(mux *http.ServeMux, staticDir string) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/settings", s.handleSettings)

	// Catalog
	mux.HandleFunc("GET /api/repositories", s.handleRepositories)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	// Repository paths contain slashes, so they are matched as the remainder.
	mux.HandleFunc("GET /api/tags/{repository...}", s.handleTags)
	mux.HandleFunc("GET /api/details/{repository...}", s.handleDetails)
	mux.HandleFunc("GET /api/images/{reference...}", s.handleImage)
	mux.HandleFunc("DELETE /api/images/{reference...}", s.handleDeleteImage)

	// Server-Sent Events for refresh and delete notifications
	mux.HandleFunc("GET /api/events", s.handleEvents)

	// Serve static UI files if directory is configured
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			s.logger.Info("Serving static UI from %s", staticDir)
			mux.Handle("/", spaHandler(staticDir))
		} else {
			s.logger.Warn("Static directory %s not found, UI will not be served", staticDir)
		}
	}
}

// Start starts the refresher and then serves HTTP until Shutdown.
func (s *Server) Start() error {
	if s.refresher != nil {
		s.refresher.Start(context.Background())
	}

	s.logger.Info("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")

	if s.refresher != nil {
		s.refresher.Stop()
	}

	// Stop rate limiter cleanup goroutines
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for development.
// Returns middleware function compatible with ChainMiddleware.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+CorrelationIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", CorrelationIDHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// spaHandler serves static files and falls back to index.html for SPA routing
func spaHandler(staticDir string) http.Handler {
	fileServer := http.FileServer(http.Dir(staticDir))
	rootIndex := filepath.Join(staticDir, "index.html")

	serveIndex := func(w http.ResponseWriter, r *http.Request, indexPath string) {
		// HTML files: always validate (allows 304 responses)
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, indexPath)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Don't serve API routes through static handler
		if strings.HasPrefix(r.URL.Path, "/api/") {
			RespondNotFound(w, fmt.Errorf("no such endpoint: %s %s", r.Method, r.URL.Path))
			return
		}

		path := filepath.Clean(r.URL.Path)
		if path == "/" {
			path = "/index.html"
		}

		fullPath := filepath.Join(staticDir, path)
		info, err := os.Stat(fullPath)
		switch {
		case os.IsNotExist(err):
			// Unknown paths are client-side routes
			if _, indexErr := os.Stat(rootIndex); indexErr == nil {
				serveIndex(w, r, rootIndex)
				return
			}
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		case info.IsDir():
			indexPath := filepath.Join(fullPath, "index.html")
			if _, indexErr := os.Stat(indexPath); indexErr == nil {
				serveIndex(w, r, indexPath)
				return
			}
			serveIndex(w, r, rootIndex)
			return
		}

		// Set cache headers based on file type
		if strings.HasSuffix(path, ".html") {
			w.Header().Set("Cache-Control", "no-cache")
		} else if strings.HasPrefix(path, "/assets/") {
			// Versioned assets (JS/CSS with hashes): cache forever
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			// Other static files (images, fonts): cache for 1 hour
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}

		fileServer.ServeHTTP(w, r)
	})
}
