// Package geo provides the geometry operations the compositing pipeline relies on:
// reprojection through a Projector, union of polygonal geometries, bounds,
// raster footprints and footprint/AOI intersection.
package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
)

// WGS84 is the geographic CRS used for catalog queries and UTM zone derivation.
const WGS84 = "EPSG:4326"

// ErrEmpty is returned when an operation needs at least one polygonal geometry.
var ErrEmpty = errors.New("no polygonal geometry")

// Projector converts geometries between coordinate reference systems.
// CRS values are anything the implementation accepts as user input
// ("EPSG:32630", a WKT string, a PROJ string).
type Projector interface {
	// Reproject returns a copy of g expressed in the target CRS.
	Reproject(g orb.Geometry, from, to string) (orb.Geometry, error)

	// IsGeographic reports whether the CRS uses angular (degree) coordinates.
	IsGeographic(crs string) (bool, error)
}

// Transform returns a copy of g whose coordinates were rewritten by fn.
// fn receives every coordinate of the geometry at once so implementations
// can batch the conversion.
func Transform(g orb.Geometry, fn func(xs, ys []float64) error) (orb.Geometry, error) {
	switch t := g.(type) {
	case nil:
		return nil, fmt.Errorf("geometry is nil")
	case orb.Point:
		mp, err := Transform(orb.MultiPoint{t}, fn)
		if err != nil {
			return nil, err
		}
		return mp.(orb.MultiPoint)[0], nil
	case orb.Bound:
		g = t.ToPolygon()
	}

	out := orb.Clone(g)
	var pts []*orb.Point
	collectPoints(out, &pts)

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p[0], p[1]
	}

	if err := fn(xs, ys); err != nil {
		return nil, err
	}

	for i, p := range pts {
		p[0], p[1] = xs[i], ys[i]
	}
	return out, nil
}

func collectPoints(g orb.Geometry, pts *[]*orb.Point) {
	switch g := g.(type) {
	case orb.MultiPoint:
		for i := range g {
			*pts = append(*pts, &g[i])
		}
	case orb.LineString:
		for i := range g {
			*pts = append(*pts, &g[i])
		}
	case orb.Ring:
		for i := range g {
			*pts = append(*pts, &g[i])
		}
	case orb.MultiLineString:
		for _, ls := range g {
			collectPoints(ls, pts)
		}
	case orb.Polygon:
		for _, r := range g {
			collectPoints(r, pts)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			collectPoints(p, pts)
		}
	case orb.Collection:
		for _, c := range g {
			collectPoints(c, pts)
		}
	}
}

// Polygons extracts the polygonal parts of a geometry.
func Polygons(g orb.Geometry) []orb.Polygon {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return nil
		}
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(g))
		for _, p := range g {
			if len(p) > 0 {
				out = append(out, p)
			}
		}
		return out
	case orb.Bound:
		return []orb.Polygon{g.ToPolygon()}
	case orb.Collection:
		var out []orb.Polygon
		for _, c := range g {
			out = append(out, Polygons(c)...)
		}
		return out
	}
	return nil
}

// Union combines geometries into a single multipolygon.
// Overlapping parts are kept as separate members; the result is used as a
// mask and as an extent, for which member overlap is irrelevant.
func Union(geoms ...orb.Geometry) (orb.MultiPolygon, error) {
	var out orb.MultiPolygon
	for _, g := range geoms {
		out = append(out, Polygons(g)...)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

// BBox returns the bounds as [west, south, east, north].
func BBox(b orb.Bound) [4]float64 {
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Intersects reports whether an axis-aligned raster footprint and a polygonal
// geometry share a region of positive area. Touching edges do not count.
func Intersects(footprint orb.Bound, g orb.MultiPolygon) bool {
	if len(g) == 0 || !footprint.Intersects(g.Bound()) {
		return false
	}
	clipped := clip.MultiPolygon(footprint, g.Clone())
	return planar.Area(clipped) > 0
}

// Affine is a GDAL-ordered geotransform:
// originX, pixelWidth, rowRotation, originY, columnRotation, pixelHeight.
type Affine [6]float64

// Apply maps pixel (col, row) to map coordinates.
func (a Affine) Apply(col, row float64) orb.Point {
	return orb.Point{
		a[0] + col*a[1] + row*a[2],
		a[3] + col*a[4] + row*a[5],
	}
}

// Invert maps map coordinates back to fractional pixel (col, row).
// Only north-up transforms are supported.
func (a Affine) Invert(p orb.Point) (float64, float64, error) {
	if a[2] != 0 || a[4] != 0 {
		return 0, 0, fmt.Errorf("rotated geotransform not supported")
	}
	if a[1] == 0 || a[5] == 0 {
		return 0, 0, fmt.Errorf("degenerate geotransform")
	}
	return (p[0] - a[0]) / a[1], (p[1] - a[3]) / a[5], nil
}

// Resolution returns the absolute pixel size.
func (a Affine) Resolution() (float64, float64) {
	x, y := a[1], a[5]
	if x < 0 {
		x = -x
	}
	if y < 0 {
		y = -y
	}
	return x, y
}

// Footprint returns the polygon covered by a width x height raster.
func Footprint(a Affine, width, height int) orb.Polygon {
	w, h := float64(width), float64(height)
	ring := orb.Ring{
		a.Apply(0, 0),
		a.Apply(w, 0),
		a.Apply(w, h),
		a.Apply(0, h),
		a.Apply(0, 0),
	}
	return orb.Polygon{ring}
}

// FootprintBound returns the bounds of the raster footprint.
func FootprintBound(a Affine, width, height int) orb.Bound {
	return Footprint(a, width, height).Bound()
}
