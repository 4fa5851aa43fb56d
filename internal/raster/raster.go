// Package raster defines the raster engine the compositor drives.
// The GDAL-backed implementation lives in internal/gdal.
package raster

import (
	"github.com/paulmach/orb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
)

// TagDataset is the metadata item naming the HDA dataset a composite was
// built from.
const TagDataset = "WEKEO_DATASET"

// Metadata describes the pixel grid and georeferencing of a raster.
type Metadata struct {
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Bands     int        `json:"bands"`
	Transform geo.Affine `json:"transform"`
	CRS       string     `json:"crs"`
	NoData    *float64   `json:"nodata,omitempty"`
	// Tags are dataset-level metadata items written into the file header.
	Tags map[string]string `json:"tags,omitempty"`
}

// Tag returns a metadata item, or "" when unset.
func (m Metadata) Tag(key string) string {
	return m.Tags[key]
}

// Footprint returns the polygon covered by the grid, in CRS units.
func (m Metadata) Footprint() orb.Polygon {
	return geo.Footprint(m.Transform, m.Width, m.Height)
}

// Bound returns the extent of the grid, in CRS units.
func (m Metadata) Bound() orb.Bound {
	return geo.FootprintBound(m.Transform, m.Width, m.Height)
}

// Dataset is an open raster. Callers must Close it.
type Dataset interface {
	Metadata() Metadata
	Close() error
}

// Engine reads, combines, masks and writes rasters.
type Engine interface {
	// Open opens a raster file.
	Open(path string) (Dataset, error)

	// Merge mosaics sources onto one grid in the first source's CRS and
	// resolution. Where sources overlap the earlier source wins.
	Merge(srcs []Dataset) (Dataset, error)

	// Mask sets pixels outside geom to nodata. With crop the grid shrinks
	// to the geometry extent. geom is in the dataset CRS.
	Mask(ds Dataset, geom orb.MultiPolygon, crop bool) (Dataset, error)

	// Write encodes ds as a GeoTIFF at path using meta for the header.
	Write(path string, ds Dataset, meta Metadata) error
}
