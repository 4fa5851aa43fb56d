// Package pipeline runs the acquisition and compositing steps in order:
// resolve the area of interest, fetch tiles, filter them by UTM zone,
// group them, composite each group and clean the working directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/robert-malhotra/wekeo-mosaic/internal/aoi"
	"github.com/robert-malhotra/wekeo-mosaic/internal/composite"
	"github.com/robert-malhotra/wekeo-mosaic/internal/fetch"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster"
	"github.com/robert-malhotra/wekeo-mosaic/internal/report"
	"github.com/robert-malhotra/wekeo-mosaic/internal/tile"
	"github.com/robert-malhotra/wekeo-mosaic/internal/wekeo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/workdir"
)

// Request describes one run.
type Request struct {
	// Shape is a vector file path or a deimsid:... site reference.
	Shape string `json:"shape"`

	// DatasetID is the HDA dataset identifier.
	DatasetID string `json:"dataset_id"`

	// Products are the product types to fetch, in fetch order.
	Products []string `json:"products,omitempty"`

	// Start and End are inclusive YYYY-MM-DD dates.
	Start string `json:"start"`
	End   string `json:"end"`

	// WorkDir receives downloads and outputs.
	WorkDir string `json:"work_dir"`
}

// Validate checks the request before any work is done.
func (r Request) Validate() error {
	var missing []string
	if r.Shape == "" {
		missing = append(missing, "shape")
	}
	if r.DatasetID == "" {
		missing = append(missing, "dataset")
	}
	if r.Start == "" {
		missing = append(missing, "start")
	}
	if r.End == "" {
		missing = append(missing, "end")
	}
	if r.WorkDir == "" {
		missing = append(missing, "work_dir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Resolver  *aoi.Resolver
	Catalog   fetch.Catalog
	Engine    raster.Engine
	Projector geo.Projector
	Logger    *slog.Logger
}

// Pipeline orchestrates a run. Steps run strictly one after another.
type Pipeline struct {
	resolver   *aoi.Resolver
	fetcher    *fetch.Fetcher
	filter     *tile.Filter
	indexer    *tile.Indexer
	compositor *composite.Compositor
	cleaner    *workdir.Cleaner
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a pipeline.
func New(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		resolver:   d.Resolver.WithLogger(logger),
		filter:     tile.NewFilter(logger),
		indexer:    tile.NewIndexer(logger),
		compositor: composite.New(d.Engine, d.Projector).WithLogger(logger),
		cleaner:    workdir.NewCleaner(logger),
		logger:     logger,
		now:        time.Now,
	}
	if d.Catalog != nil {
		p.fetcher = fetch.NewFetcher(d.Catalog).WithLogger(logger)
	}
	return p
}

// Run executes the full pipeline. The returned report is never nil; the
// error is set only when the run was aborted (area of interest, catalog
// authentication, invalid request or cancellation).
func (p *Pipeline) Run(ctx context.Context, req Request) (*report.Report, error) {
	rep := report.New(p.now())

	err := p.run(ctx, req, rep)
	p.finish(ctx, req.WorkDir, rep, err)
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, req Request, rep *report.Report) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if p.fetcher == nil {
		return errors.New("no catalog configured")
	}

	area, err := p.resolver.Resolve(ctx, req.Shape)
	if err != nil {
		return fmt.Errorf("resolving area of interest: %w", err)
	}

	reqs, err := wekeo.BuildRequests(req.DatasetID, req.Products, area.BBox, req.Start, req.End)
	if err != nil {
		return err
	}

	if err := workdir.Ensure(req.WorkDir); err != nil {
		return err
	}

	results, err := p.fetcher.Fetch(ctx, reqs, req.WorkDir)
	rep.Add(results...)
	if err != nil {
		return err
	}

	return p.process(ctx, composite.Job{Dir: req.WorkDir, Area: area, Dataset: req.DatasetID}, rep)
}

// Composite runs the local steps (filter, index, composite, clean) over
// tiles already present in dir. dataset, when set, is recorded in the
// outputs as in a full run.
func (p *Pipeline) Composite(ctx context.Context, shape, dir, dataset string) (*report.Report, error) {
	rep := report.New(p.now())

	err := func() error {
		if _, err := os.Stat(dir); err != nil {
			return err
		}
		area, err := p.resolver.Resolve(ctx, shape)
		if err != nil {
			return fmt.Errorf("resolving area of interest: %w", err)
		}
		return p.process(ctx, composite.Job{Dir: dir, Area: area, Dataset: dataset}, rep)
	}()

	p.finish(ctx, dir, rep, err)
	return rep, err
}

func (p *Pipeline) process(ctx context.Context, job composite.Job, rep *report.Report) error {
	area := job.Area
	filtered, err := p.filter.Apply(ctx, job.Dir, area.Zones)
	if err != nil {
		return fmt.Errorf("filtering tiles: %w", err)
	}
	rep.Add(report.OK(report.StageFilter, strings.Join(area.Zones, ","),
		fmt.Sprintf("kept %d, removed %d", len(filtered.Kept), len(filtered.Removed))))

	ix, err := p.indexer.Build(ctx, job.Dir)
	if err != nil {
		return fmt.Errorf("indexing tiles: %w", err)
	}
	for _, s := range ix.Skipped {
		rep.Add(report.Skipped(report.StageIndex, s.Name, s.Err))
	}

	results, err := p.compositor.Run(ctx, job, ix)
	rep.Add(results...)
	return err
}

// finish cleans the working directory, records the outputs and stamps the
// report. Cleanup runs whenever the working directory exists.
func (p *Pipeline) finish(ctx context.Context, dir string, rep *report.Report, runErr error) {
	if dir != "" {
		if _, err := os.Stat(dir); err == nil {
			removed, err := p.cleaner.Clean(context.WithoutCancel(ctx), dir)
			if err != nil {
				rep.Add(report.Skipped(report.StageClean, dir, err))
			} else {
				rep.Add(report.OK(report.StageClean, dir, fmt.Sprintf("removed %d", len(removed))))
			}
			if outputs, err := workdir.Outputs(dir); err == nil {
				rep.SetOutputs(outputs)
			}
		}
	}

	rep.Finish(p.now(), runErr)

	if runErr != nil {
		p.logger.ErrorContext(ctx, "run aborted",
			slog.String("error", runErr.Error()),
			slog.String("summary", rep.String()),
		)
		return
	}
	p.logger.InfoContext(ctx, "run completed", slog.String("summary", rep.String()))
}
