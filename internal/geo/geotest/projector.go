// Package geotest provides an in-memory geo.Projector for tests.
package geotest

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
)

// Linear describes a CRS as a scale and offset applied to WGS84 coordinates:
// x = lon*Scale + OffsetX, y = lat*Scale + OffsetY.
type Linear struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// Projector converts between WGS84 and registered linear CRSs.
// Axis-aligned boxes stay axis-aligned, which keeps expected values exact.
type Projector struct {
	CRS map[string]Linear
}

// NewProjector returns a projector that knows EPSG:4326 plus the given CRSs.
func NewProjector(crs map[string]Linear) *Projector {
	all := map[string]Linear{geo.WGS84: {Scale: 1}}
	for k, v := range crs {
		all[k] = v
	}
	return &Projector{CRS: all}
}

// Reproject implements geo.Projector.
func (p *Projector) Reproject(g orb.Geometry, from, to string) (orb.Geometry, error) {
	src, ok := p.CRS[from]
	if !ok {
		return nil, fmt.Errorf("unknown crs %q", from)
	}
	dst, ok := p.CRS[to]
	if !ok {
		return nil, fmt.Errorf("unknown crs %q", to)
	}
	return geo.Transform(g, func(xs, ys []float64) error {
		for i := range xs {
			lon := (xs[i] - src.OffsetX) / src.Scale
			lat := (ys[i] - src.OffsetY) / src.Scale
			xs[i] = lon*dst.Scale + dst.OffsetX
			ys[i] = lat*dst.Scale + dst.OffsetY
		}
		return nil
	})
}

// IsGeographic implements geo.Projector. Only EPSG:4326 is geographic.
func (p *Projector) IsGeographic(crs string) (bool, error) {
	if _, ok := p.CRS[crs]; !ok {
		return false, fmt.Errorf("unknown crs %q", crs)
	}
	return crs == geo.WGS84, nil
}
