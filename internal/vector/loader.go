// Package vector loads area-of-interest boundaries from vector files.
// GeoJSON is decoded natively; other formats are delegated to a fallback
// loader backed by OGR.
package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/wekeo-mosaic/internal/aoi"
)

// urn:ogc:def:crs:EPSG::32630, urn:ogc:def:crs:EPSG:6.6:4326, EPSG:3035
var epsgName = regexp.MustCompile(`EPSG:(?:[\d.]*:)?(\d+)$`)

// Loader implements aoi.VectorLoader.
type Loader struct {
	fallback aoi.VectorLoader
}

// NewLoader creates a loader. fallback handles every non-GeoJSON file and
// may be nil, in which case such files are rejected.
func NewLoader(fallback aoi.VectorLoader) *Loader {
	return &Loader{fallback: fallback}
}

// Load reads the file at path.
func (l *Loader) Load(path string) (aoi.Shape, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return aoi.Shape{}, fmt.Errorf("%w: %v", aoi.ErrParse, err)
		}
		return DecodeGeoJSON(data)
	}

	if l.fallback == nil {
		return aoi.Shape{}, fmt.Errorf("%w: unsupported format %s", aoi.ErrParse, filepath.Ext(path))
	}
	return l.fallback.Load(path)
}

// DecodeGeoJSON decodes a FeatureCollection, a Feature or a bare geometry.
// A legacy named "crs" member on a collection sets the shape CRS.
func DecodeGeoJSON(data []byte) (aoi.Shape, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && fc.Type == "FeatureCollection" {
		c := make(orb.Collection, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				c = append(c, f.Geometry)
			}
		}
		return aoi.Shape{Geometry: c, CRS: crsMember(fc.ExtraMembers)}, nil
	}

	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Type == "Feature" {
		if f.Geometry == nil {
			return aoi.Shape{}, fmt.Errorf("%w: feature has no geometry", aoi.ErrParse)
		}
		return aoi.Shape{Geometry: f.Geometry}, nil
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return aoi.Shape{}, fmt.Errorf("%w: %v", aoi.ErrParse, err)
	}
	if g.Geometry() == nil {
		return aoi.Shape{}, fmt.Errorf("%w: empty geometry", aoi.ErrParse)
	}
	return aoi.Shape{Geometry: g.Geometry()}, nil
}

func crsMember(extra geojson.Properties) string {
	crs, ok := extra["crs"].(map[string]interface{})
	if !ok {
		return ""
	}
	props, ok := crs["properties"].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := props["name"].(string)
	if name == "" || strings.Contains(name, "CRS84") {
		return ""
	}
	if m := epsgName.FindStringSubmatch(name); m != nil {
		return "EPSG:" + m[1]
	}
	return name
}
