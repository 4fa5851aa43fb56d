// Package tile parses downloaded tile names, removes tiles outside the
// area of interest and groups the rest by acquisition date and product.
package tile

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// RasterExt is the extension of tiles considered by the pipeline.
	RasterExt = ".tif"

	// OutputPrefix marks files written by the compositor.
	OutputPrefix = "mosaic_"
)

// MGRS tile token, optionally followed by a resolution suffix: T30TUK or T30TUK-010m.
var tileToken = regexp.MustCompile(`^(T\d{2})([A-Z]{3})(?:-(\w+))?$`)

// ID is the parsed form of a tile filename such as
// VI_20230615T103031_S2A_T30TUK-010m_V101_NDVI.tif. Phenology tiles carry a
// season year instead of a day (VPP_2020_S2_T30TUK-010m_V101_s1_SOSD.tif),
// so Date is at most 8 characters long.
type ID struct {
	Prefix     string // VI
	Date       string // 20230615 or 2020
	Sensor     string // S2A, empty when the name is too short to carry one
	Tile       string // T30TUK, empty when no MGRS token is present
	Zone       string // T30
	Resolution string // 010m
	Product    string // NDVI
}

// Key returns the grouping key of the tile.
func (id ID) Key() Key {
	return Key{Date: id.Date, Product: id.Product}
}

// ParseID parses a tile filename. Only the base name is considered.
func ParseID(name string) (ID, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	fields := strings.Split(stem, "_")
	if len(fields) < 3 {
		return ID{}, fmt.Errorf("%w: %s: expected at least 3 fields, got %d", ErrMalformedFilename, base, len(fields))
	}
	date := fields[1][:min(8, len(fields[1]))]
	if date == "" {
		return ID{}, fmt.Errorf("%w: %s: empty date token", ErrMalformedFilename, base)
	}

	product := fields[len(fields)-1]
	if product == "" {
		return ID{}, fmt.Errorf("%w: %s: empty product token", ErrMalformedFilename, base)
	}

	id := ID{
		Prefix:  fields[0],
		Date:    date,
		Product: product,
	}
	if len(fields) > 3 {
		id.Sensor = fields[2]
	}
	for _, f := range fields[2 : len(fields)-1] {
		if m := tileToken.FindStringSubmatch(f); m != nil {
			id.Tile = m[1] + m[2]
			id.Zone = m[1]
			id.Resolution = m[3]
			break
		}
	}
	return id, nil
}

// IsRaster reports whether the name has the tile raster extension.
func IsRaster(name string) bool {
	return strings.HasSuffix(name, RasterExt)
}

// IsOutput reports whether the name belongs to a compositor output.
func IsOutput(name string) bool {
	return strings.HasPrefix(filepath.Base(name), OutputPrefix)
}
