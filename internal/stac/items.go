package stac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/wekeo-mosaic/internal/composite"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster"
	"github.com/robert-malhotra/wekeo-mosaic/internal/workdir"
)

// Layouts of the date token in output names: a day, or a season year for
// phenology products.
const (
	dateLayout = "20060102"
	yearLayout = "2006"
)

// ErrNotOutput is returned for files that are not final composites.
var ErrNotOutput = errors.New("not a final composite")

// HrefFunc maps an output file name to the href of its data asset.
type HrefFunc func(name string) string

// ItemBuilder describes final composites as STAC items.
type ItemBuilder struct {
	engine    raster.Engine
	projector geo.Projector
	logger    *slog.Logger
}

// NewItemBuilder creates an item builder.
func NewItemBuilder(engine raster.Engine, projector geo.Projector) *ItemBuilder {
	return &ItemBuilder{engine: engine, projector: projector, logger: slog.Default()}
}

// WithLogger sets a custom logger
func (b *ItemBuilder) WithLogger(logger *slog.Logger) *ItemBuilder {
	b.logger = logger
	return b
}

// Item builds the item of one final composite.
func (b *ItemBuilder) Item(collection, path string, href HrefFunc) (*Item, error) {
	item, _, err := b.item(collection, path, href)
	return item, err
}

func (b *ItemBuilder) item(collection, path string, href HrefFunc) (*Item, raster.Metadata, error) {
	name := filepath.Base(path)
	key, ok := composite.ParseOutputName(name)
	if !ok {
		return nil, raster.Metadata{}, fmt.Errorf("%w: %s", ErrNotOutput, name)
	}
	layout := dateLayout
	if len(key.Date) == len(yearLayout) {
		layout = yearLayout
	}
	datetime, err := time.Parse(layout, key.Date)
	if err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("invalid date token %q in %s: %w", key.Date, name, err)
	}

	ds, err := b.engine.Open(path)
	if err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	meta := ds.Metadata()
	if err := ds.Close(); err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("failed to close %s: %w", name, err)
	}

	// Footprint in geographic coordinates
	footprint, err := b.projector.Reproject(meta.Footprint(), meta.CRS, geo.WGS84)
	if err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("failed to reproject footprint of %s: %w", name, err)
	}

	item := NewItem(strings.TrimSuffix(composite.MosaicName(key), filepath.Ext(name)), collection)
	item.Geometry = geojson.NewGeometry(footprint)
	bbox := geo.BBox(footprint.Bound())
	item.Bbox = bbox[:]

	item.Properties["datetime"] = datetime.UTC().Format(time.RFC3339)
	item.Properties["product"] = key.Product
	item.Properties["proj:wkt2"] = meta.CRS
	item.Properties["proj:shape"] = []int{meta.Height, meta.Width}
	item.Properties["proj:transform"] = []float64{
		meta.Transform[1], meta.Transform[2], meta.Transform[0],
		meta.Transform[4], meta.Transform[5], meta.Transform[3],
	}

	item.Assets["data"] = &Asset{
		Href:  href(name),
		Title: fmt.Sprintf("%s composite %s", key.Product, key.Date),
		Type:  MediaTypeGeoTIFF,
		Roles: []string{"data"},
	}
	item.Links = append(item.Links, &Link{Rel: "collection", Href: "./", Type: MediaTypeJSON})

	return item, meta, nil
}

// Items builds one item per final composite in dir that was built from
// datasetID, sorted by id. Files that cannot be described are logged and
// left out.
func (b *ItemBuilder) Items(ctx context.Context, collection, datasetID, dir string, href HrefFunc) (*ItemCollection, error) {
	outputs, err := workdir.Outputs(dir)
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(outputs))
	for _, name := range outputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		item, meta, err := b.item(collection, path, href)
		if err != nil {
			b.logger.WarnContext(ctx, "skipping output",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if got := meta.Tag(raster.TagDataset); got != datasetID {
			b.logger.DebugContext(ctx, "output belongs to another dataset",
				slog.String("path", path),
				slog.String("dataset", got),
			)
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Id < items[j].Id })
	return NewItemCollection(items), nil
}
