// Package server provides a public API for embedding the wekeo-mosaic results server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/wekeo-mosaic/internal/api"
	"github.com/robert-malhotra/wekeo-mosaic/internal/config"
	"github.com/robert-malhotra/wekeo-mosaic/internal/deims"
	"github.com/robert-malhotra/wekeo-mosaic/internal/stac"
	"github.com/robert-malhotra/wekeo-mosaic/internal/wekeo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/wiring"
)

// Options configures the results server.
type Options struct {
	// BaseURL is the public-facing URL for self-referential links.
	// Example: "https://api.example.com/mosaics" or "http://localhost:8080"
	BaseURL string

	// WorkDir holds the final composites and receives run outputs (required).
	WorkDir string

	// DatasetsDir is the path to dataset alias JSON files.
	// Default: "" (built-in aliases only)
	DatasetsDir string

	// WEkEOBaseURL is the HDA broker base URL.
	// Default: "https://gateway.prod.wekeo2.eu/hda-broker/api/v1"
	WEkEOBaseURL string

	// WEkEOUser and WEkEOPassword are the HDA credentials.
	// Runs are disabled when either is empty.
	WEkEOUser     string
	WEkEOPassword string

	// PageSize is the number of search results requested per page.
	// Default: 200
	PageSize int

	// DEIMSBaseURL is the DEIMS-SDR base URL.
	// Default: "https://deims.org"
	DEIMSBaseURL string

	// Timeout is the upstream request timeout.
	// Default: 5m
	Timeout time.Duration

	// RunTimeout bounds each run started through POST /runs.
	// Default: 2h
	RunTimeout time.Duration

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a results server that can be embedded in another application.
type Server struct {
	router   chi.Router
	handlers *api.Handlers
	cancel   context.CancelFunc
}

// New creates a new results server with the given options.
func New(opts Options) (*Server, error) {
	if opts.WorkDir == "" {
		return nil, fmt.Errorf("work dir is required")
	}

	// Apply defaults
	if opts.WEkEOBaseURL == "" {
		opts.WEkEOBaseURL = wekeo.DefaultBaseURL
	}
	if opts.DEIMSBaseURL == "" {
		opts.DEIMSBaseURL = deims.DefaultBaseURL
	}
	if opts.PageSize == 0 {
		opts.PageSize = wekeo.DefaultItemsPerPage
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.RunTimeout == 0 {
		opts.RunTimeout = 2 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	datasets, err := config.LoadDatasets(opts.DatasetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load datasets: %w", err)
	}

	wopts := wiring.Options{
		WEkEO: config.WEkEOConfig{
			BaseURL:  opts.WEkEOBaseURL,
			Timeout:  opts.Timeout,
			PageSize: opts.PageSize,
		},
		DEIMS:  config.DEIMSConfig{BaseURL: opts.DEIMSBaseURL, Timeout: opts.Timeout},
		Logger: opts.Logger,
	}
	// Runs need HDA credentials
	if opts.WEkEOUser != "" && opts.WEkEOPassword != "" {
		wopts.Credentials = &wekeo.Credentials{User: opts.WEkEOUser, Password: opts.WEkEOPassword}
	}
	components := wiring.New(wopts)

	items := stac.NewItemBuilder(components.Engine, components.Projector).WithLogger(opts.Logger)

	var runner api.Runner
	if components.HasCatalog() {
		runner = components.Pipeline
		opts.Logger.Info("runs enabled", slog.String("base_url", opts.WEkEOBaseURL))
	} else {
		opts.Logger.Info("runs disabled: no HDA credentials")
	}

	ctx, cancel := context.WithCancel(context.Background())

	handlers := api.NewHandlers(api.Options{
		BaseURL:    opts.BaseURL,
		WorkDir:    opts.WorkDir,
		RunTimeout: opts.RunTimeout,
	}, datasets, items, runner, opts.Logger).WithContext(ctx)

	router := api.NewRouter(handlers, opts.Logger)

	return &Server{
		router:   router,
		handlers: handlers,
		cancel:   cancel,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close cancels a run in progress and waits for its cleanup to finish.
func (s *Server) Close() {
	s.cancel()
	s.handlers.Wait()
}
