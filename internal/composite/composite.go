// Package composite merges the tiles of each group into one raster and
// clips it to the area of interest.
package composite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/wekeo-mosaic/internal/aoi"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster"
	"github.com/robert-malhotra/wekeo-mosaic/internal/report"
	"github.com/robert-malhotra/wekeo-mosaic/internal/tile"
)

// OutputSuffix marks final clipped composites.
const OutputSuffix = "_rec.tif"

// ErrNoOverlap is returned when a merged group does not overlap the area of interest.
var ErrNoOverlap = errors.New("composite does not overlap the area of interest")

// MosaicName is the file name of the merged, unclipped raster of a group.
func MosaicName(key tile.Key) string {
	return fmt.Sprintf("%s%s_%s.tif", tile.OutputPrefix, key.Date, key.Product)
}

// OutputName is the file name of the final clipped raster of a group.
func OutputName(key tile.Key) string {
	return fmt.Sprintf("%s%s_%s%s", tile.OutputPrefix, key.Date, key.Product, OutputSuffix)
}

// ParseOutputName returns the group key of a final output file name.
func ParseOutputName(name string) (tile.Key, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, tile.OutputPrefix) || !strings.HasSuffix(base, OutputSuffix) {
		return tile.Key{}, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(base, tile.OutputPrefix), OutputSuffix)
	date, product, ok := strings.Cut(stem, "_")
	if !ok || date == "" || product == "" {
		return tile.Key{}, false
	}
	return tile.Key{Date: date, Product: product}, true
}

// Compositor turns tile groups into clipped composites.
type Compositor struct {
	engine    raster.Engine
	projector geo.Projector
	logger    *slog.Logger
}

// New creates a compositor.
func New(engine raster.Engine, projector geo.Projector) *Compositor {
	return &Compositor{engine: engine, projector: projector, logger: slog.Default()}
}

// WithLogger sets a custom logger
func (c *Compositor) WithLogger(logger *slog.Logger) *Compositor {
	c.logger = logger
	return c
}

// Job is the target of a compositing pass.
type Job struct {
	// Dir receives the intermediate and final rasters.
	Dir string
	// Area is the area of interest outputs are clipped to.
	Area *aoi.AreaOfInterest
	// Dataset is the HDA dataset id recorded in each final output.
	// Outputs are left untagged when empty.
	Dataset string
}

// Run composites every group of ix in key order. A failing group is logged
// and reported as skipped; only context cancellation stops the loop.
func (c *Compositor) Run(ctx context.Context, job Job, ix *tile.Index) ([]report.Result, error) {
	var results []report.Result
	for _, key := range ix.Keys() {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		out, err := c.Composite(ctx, job, key, ix.Groups[key])
		if err != nil {
			c.logger.WarnContext(ctx, "skipping group",
				slog.String("date", key.Date),
				slog.String("product", key.Product),
				slog.String("reason", err.Error()),
			)
			results = append(results, report.Skipped(report.StageComposite, key.String(), err))
			continue
		}
		results = append(results, report.OK(report.StageComposite, key.String(), out))
	}
	return results, nil
}

// Composite merges tiles, writes the intermediate mosaic, clips it to the
// area of interest and writes the final output. It returns the output path.
// Every dataset opened for the group is closed before returning.
func (c *Compositor) Composite(ctx context.Context, job Job, key tile.Key, tiles []tile.Tile) (string, error) {
	if len(tiles) == 0 {
		return "", fmt.Errorf("group %s has no tiles", key)
	}

	var opened []raster.Dataset
	defer func() {
		for _, ds := range opened {
			if err := ds.Close(); err != nil {
				c.logger.WarnContext(ctx, "failed to close raster", slog.String("error", err.Error()))
			}
		}
	}()

	// Open
	srcs := make([]raster.Dataset, 0, len(tiles))
	for _, t := range tiles {
		ds, err := c.engine.Open(t.Path)
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", filepath.Base(t.Path), err)
		}
		opened = append(opened, ds)
		srcs = append(srcs, ds)
	}
	crs := srcs[0].Metadata().CRS

	// Merge
	merged, err := c.engine.Merge(srcs)
	if err != nil {
		return "", fmt.Errorf("merging: %w", err)
	}
	opened = append(opened, merged)

	meta := merged.Metadata()
	meta.CRS = crs
	mosaic := filepath.Join(job.Dir, MosaicName(key))
	if err := c.engine.Write(mosaic, merged, meta); err != nil {
		return "", fmt.Errorf("writing %s: %w", filepath.Base(mosaic), err)
	}

	c.logger.DebugContext(ctx, "merged tiles",
		slog.String("date", key.Date),
		slog.String("product", key.Product),
		slog.Int("tiles", len(tiles)),
		slog.Int("width", meta.Width),
		slog.Int("height", meta.Height),
	)

	// Reproject the area of interest and check overlap
	geom, err := job.Area.In(crs, c.projector)
	if err != nil {
		return "", err
	}
	if !geo.Intersects(meta.Bound(), geom) {
		return "", ErrNoOverlap
	}

	// Clip
	clipped, err := c.engine.Mask(merged, geom, true)
	if err != nil {
		return "", fmt.Errorf("clipping: %w", err)
	}
	opened = append(opened, clipped)

	outMeta := clipped.Metadata()
	outMeta.CRS = crs
	if job.Dataset != "" {
		outMeta.Tags = map[string]string{raster.TagDataset: job.Dataset}
	}
	out := filepath.Join(job.Dir, OutputName(key))
	if err := c.engine.Write(out, clipped, outMeta); err != nil {
		return "", fmt.Errorf("writing %s: %w", filepath.Base(out), err)
	}

	c.logger.InfoContext(ctx, "composite written",
		slog.String("date", key.Date),
		slog.String("product", key.Product),
		slog.String("path", out),
	)
	return out, nil
}
