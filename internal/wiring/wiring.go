// Package wiring assembles the GDAL-backed pipeline shared by the CLI and
// the results server.
package wiring

import (
	"log/slog"

	"github.com/robert-malhotra/wekeo-mosaic/internal/aoi"
	"github.com/robert-malhotra/wekeo-mosaic/internal/config"
	"github.com/robert-malhotra/wekeo-mosaic/internal/deims"
	"github.com/robert-malhotra/wekeo-mosaic/internal/fetch"
	"github.com/robert-malhotra/wekeo-mosaic/internal/gdal"
	"github.com/robert-malhotra/wekeo-mosaic/internal/pipeline"
	"github.com/robert-malhotra/wekeo-mosaic/internal/vector"
	"github.com/robert-malhotra/wekeo-mosaic/internal/wekeo"
)

// Options configures the assembled components.
type Options struct {
	WEkEO config.WEkEOConfig
	DEIMS config.DEIMSConfig

	// Credentials enable the HDA catalog. Without them the pipeline can
	// only composite tiles already on disk.
	Credentials *wekeo.Credentials

	// Progress shows download progress bars.
	Progress bool

	Logger *slog.Logger
}

// Components are the collaborators built from Options.
type Components struct {
	Engine    *gdal.Engine
	Projector gdal.Projector
	// Catalog is nil when no credentials were given.
	Catalog  fetch.Catalog
	Pipeline *pipeline.Pipeline
}

// HasCatalog reports whether the pipeline can fetch tiles.
func (c *Components) HasCatalog() bool {
	return c.Catalog != nil
}

// New wires the GDAL engine and projector, the DEIMS and vector boundary
// sources and, when credentials are set, the HDA catalog.
func New(opts Options) *Components {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gdal.Register()
	c := &Components{
		Engine:    gdal.NewEngine().WithLogger(logger),
		Projector: gdal.NewProjector(),
	}

	boundaries := deims.NewClient(opts.DEIMS.BaseURL, opts.DEIMS.Timeout).WithLogger(logger)
	vectors := vector.NewLoader(gdal.NewVectorLoader())

	if opts.Credentials != nil {
		hda := wekeo.NewClient(opts.WEkEO.BaseURL, *opts.Credentials, opts.WEkEO.Timeout).
			WithLogger(logger).
			WithPageSize(opts.WEkEO.PageSize).
			WithProgress(opts.Progress)
		c.Catalog = fetch.NewHDACatalog(hda)
	}

	c.Pipeline = pipeline.New(pipeline.Deps{
		Resolver:  aoi.NewResolver(boundaries, vectors, c.Projector),
		Catalog:   c.Catalog,
		Engine:    c.Engine,
		Projector: c.Projector,
		Logger:    logger,
	})
	return c
}
