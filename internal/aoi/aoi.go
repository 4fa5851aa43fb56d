// Package aoi resolves a boundary specifier into the area of interest used
// to query the catalog and to clip composites.
package aoi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
)

// DEIMSPrefix marks a boundary specifier naming a DEIMS site.
const DEIMSPrefix = "deimsid"

// Shape is a geometry together with the CRS its coordinates are expressed in.
// An empty CRS means WGS84.
type Shape struct {
	Geometry orb.Geometry
	CRS      string
}

// BoundarySource looks up a site boundary by identifier.
type BoundarySource interface {
	Boundary(ctx context.Context, id string) (Shape, error)
}

// VectorLoader reads a geometry from a vector file.
type VectorLoader interface {
	Load(path string) (Shape, error)
}

// AreaOfInterest is the resolved boundary of a run.
type AreaOfInterest struct {
	// Geometry is the union of the boundary in its source CRS.
	Geometry orb.MultiPolygon
	CRS      string

	// Geographic is Geometry reprojected to WGS84.
	Geographic orb.MultiPolygon

	// BBox is [west, south, east, north] of Geographic.
	BBox [4]float64

	// Zones are the UTM zone labels (T01..T60) spanned by BBox.
	Zones []string
}

// In returns the area of interest expressed in crs.
func (a *AreaOfInterest) In(crs string, p geo.Projector) (orb.MultiPolygon, error) {
	if crs == a.CRS {
		return a.Geometry.Clone(), nil
	}
	if crs == geo.WGS84 {
		return a.Geographic.Clone(), nil
	}
	g, err := p.Reproject(a.Geometry, a.CRS, crs)
	if err != nil {
		return nil, fmt.Errorf("reprojecting area of interest to %s: %w", crs, err)
	}
	return geo.Union(g)
}

// Resolver turns boundary specifiers into areas of interest.
type Resolver struct {
	boundaries BoundarySource
	vectors    VectorLoader
	projector  geo.Projector
	logger     *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(boundaries BoundarySource, vectors VectorLoader, projector geo.Projector) *Resolver {
	return &Resolver{
		boundaries: boundaries,
		vectors:    vectors,
		projector:  projector,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger.
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// Resolve loads the boundary named by ref. A ref starting with "deimsid"
// is looked up by the last path segment of the DEIMS site URL; anything
// else is read as a vector file.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*AreaOfInterest, error) {
	var (
		shape Shape
		err   error
	)
	if id, ok := DEIMSID(ref); ok {
		if r.boundaries == nil {
			return nil, fmt.Errorf("no boundary source configured for %s", ref)
		}
		r.logger.InfoContext(ctx, "resolving DEIMS site boundary", slog.String("site", id))
		shape, err = r.boundaries.Boundary(ctx, id)
	} else {
		if r.vectors == nil {
			return nil, fmt.Errorf("no vector loader configured for %s", ref)
		}
		r.logger.InfoContext(ctx, "loading boundary file", slog.String("path", ref))
		shape, err = r.vectors.Load(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("loading boundary %s: %w", ref, err)
	}

	a, err := r.build(shape)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "resolved area of interest",
		slog.String("crs", a.CRS),
		slog.Any("bbox", a.BBox),
		slog.String("zones", strings.Join(a.Zones, ",")),
	)
	return a, nil
}

func (r *Resolver) build(shape Shape) (*AreaOfInterest, error) {
	mp, err := geo.Union(shape.Geometry)
	if err != nil {
		if errors.Is(err, geo.ErrEmpty) {
			return nil, ErrGeometry
		}
		return nil, err
	}

	crs := shape.CRS
	if crs == "" {
		crs = geo.WGS84
	}

	a := &AreaOfInterest{Geometry: mp, CRS: crs, Geographic: mp}

	geographic, err := r.projector.IsGeographic(crs)
	if err != nil {
		return nil, fmt.Errorf("inspecting crs: %w", err)
	}
	if !geographic {
		g, err := r.projector.Reproject(mp, crs, geo.WGS84)
		if err != nil {
			return nil, fmt.Errorf("reprojecting boundary to %s: %w", geo.WGS84, err)
		}
		if a.Geographic, err = geo.Union(g); err != nil {
			return nil, ErrGeometry
		}
	}

	a.BBox = geo.BBox(a.Geographic.Bound())
	a.Zones = UTMZones(a.BBox[0], a.BBox[2])
	return a, nil
}

// DEIMSID extracts the site identifier from a DEIMS boundary specifier,
// e.g. deimsid:https://deims.org/8eda49e9-1f4e-4f3e-b58e-e0bb25dc32a6.
func DEIMSID(ref string) (string, bool) {
	if !strings.HasPrefix(ref, DEIMSPrefix) {
		return "", false
	}
	trimmed := strings.TrimRight(ref, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:], true
	}
	return strings.TrimPrefix(strings.TrimPrefix(trimmed, DEIMSPrefix), ":"), true
}

// UTMZone returns the 1-based UTM zone number of a longitude.
func UTMZone(lon float64) int {
	return int(math.Floor((lon+180)/6))%60 + 1
}

// UTMZones returns the zone labels of the west and east longitudes.
// Zones strictly between the two are not included.
func UTMZones(west, east float64) []string {
	w := fmt.Sprintf("T%02d", UTMZone(west))
	e := fmt.Sprintf("T%02d", UTMZone(east))
	if w == e {
		return []string{w}
	}
	return []string{w, e}
}
