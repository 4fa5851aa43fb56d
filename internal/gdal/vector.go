package gdal

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/aoi"
)

// VectorLoader implements aoi.VectorLoader for any OGR-readable file
// (shapefile, GeoPackage, KML, ...).
type VectorLoader struct{}

// NewVectorLoader creates a loader and registers the GDAL drivers.
func NewVectorLoader() VectorLoader {
	Register()
	return VectorLoader{}
}

// Load reads the geometries of every layer. The CRS is taken from the
// first layer that declares one.
func (VectorLoader) Load(path string) (aoi.Shape, error) {
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return aoi.Shape{}, fmt.Errorf("%w: %v", aoi.ErrParse, err)
	}
	defer ds.Close()

	var (
		shape aoi.Shape
		geoms orb.Collection
	)
	for _, layer := range ds.Layers() {
		if shape.CRS == "" {
			if sr := layer.SpatialRef(); sr != nil {
				if wkt, err := sr.WKT(); err == nil {
					shape.CRS = wkt
				}
			}
		}

		layer.ResetReading()
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}
			g, err := featureGeometry(feat)
			feat.Close()
			if err != nil {
				return aoi.Shape{}, fmt.Errorf("%w: %s: %v", aoi.ErrParse, path, err)
			}
			if g != nil {
				geoms = append(geoms, g)
			}
		}
	}

	shape.Geometry = geoms
	return shape, nil
}

func featureGeometry(feat *godal.Feature) (orb.Geometry, error) {
	geom := feat.Geometry()
	if geom == nil {
		return nil, nil
	}
	defer geom.Close()

	data, err := geom.WKB()
	if err != nil {
		return nil, err
	}
	return wkb.Unmarshal(data)
}
