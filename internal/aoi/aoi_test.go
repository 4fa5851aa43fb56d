package aoi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo/geotest"
)

type fakeBoundaries struct {
	shapes map[string]Shape
	gotID  string
}

func (f *fakeBoundaries) Boundary(_ context.Context, id string) (Shape, error) {
	f.gotID = id
	s, ok := f.shapes[id]
	if !ok {
		return Shape{}, errors.New("site not found")
	}
	return s, nil
}

type fakeVectors map[string]Shape

func (f fakeVectors) Load(path string) (Shape, error) {
	s, ok := f[path]
	if !ok {
		return Shape{}, ErrParse
	}
	return s, nil
}

func box(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()
}

func newTestResolver(b BoundarySource, v VectorLoader) *Resolver {
	p := geotest.NewProjector(map[string]geotest.Linear{
		"EPSG:32630": {Scale: 100000, OffsetX: 500000, OffsetY: 0},
	})
	return NewResolver(b, v, p).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUTMZone(t *testing.T) {
	tests := []struct {
		lon  float64
		want int
	}{
		{-180, 1},
		{-177.5, 1},
		{-3.2, 30},
		{0, 31},
		{5.99, 31},
		{6, 32},
		{179.9, 60},
		{180, 1},
	}
	for _, tt := range tests {
		if got := UTMZone(tt.lon); got != tt.want {
			t.Errorf("UTMZone(%v): expected %d, got %d", tt.lon, tt.want, got)
		}
	}
}

func TestUTMZones(t *testing.T) {
	if got := UTMZones(-1.5, -0.5); len(got) != 1 || got[0] != "T30" {
		t.Errorf("Expected [T30], got %v", got)
	}
	if got := UTMZones(-1, 1); len(got) != 2 || got[0] != "T30" || got[1] != "T31" {
		t.Errorf("Expected [T30 T31], got %v", got)
	}
	// Only the extreme longitudes are considered.
	if got := UTMZones(-10, 10); len(got) != 2 || got[0] != "T29" || got[1] != "T32" {
		t.Errorf("Expected [T29 T32], got %v", got)
	}
}

func TestDEIMSID(t *testing.T) {
	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{"deimsid:https://deims.org/8eda49e9-1f4e-4f3e-b58e-e0bb25dc32a6", "8eda49e9-1f4e-4f3e-b58e-e0bb25dc32a6", true},
		{"deimsid:https://deims.org/abc/", "abc", true},
		{"deimsid:abc", "abc", true},
		{"/data/site.geojson", "", false},
	}
	for _, tt := range tests {
		got, ok := DEIMSID(tt.ref)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("DEIMSID(%q): expected (%q, %v), got (%q, %v)", tt.ref, tt.want, tt.wantOK, got, ok)
		}
	}
}

func TestResolver_DEIMS(t *testing.T) {
	b := &fakeBoundaries{shapes: map[string]Shape{
		"site-1": {Geometry: box(-1, 42, 1, 43)},
	}}
	r := newTestResolver(b, nil)

	a, err := r.Resolve(context.Background(), "deimsid:https://deims.org/site-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if b.gotID != "site-1" {
		t.Errorf("Expected lookup of site-1, got %s", b.gotID)
	}
	if a.CRS != geo.WGS84 {
		t.Errorf("Expected CRS %s, got %s", geo.WGS84, a.CRS)
	}
	if a.BBox != [4]float64{-1, 42, 1, 43} {
		t.Errorf("Unexpected bbox %v", a.BBox)
	}
	if len(a.Zones) != 2 || a.Zones[0] != "T30" || a.Zones[1] != "T31" {
		t.Errorf("Expected zones [T30 T31], got %v", a.Zones)
	}
}

func TestResolver_ProjectedFileBBoxMatchesReprojectedBox(t *testing.T) {
	// Axis-aligned geometry in a projected CRS.
	proj := orb.MultiPolygon{box(350000, 4200000, 400000, 4260000), box(420000, 4210000, 450000, 4250000)}
	r := newTestResolver(nil, fakeVectors{"site.shp": {Geometry: proj, CRS: "EPSG:32630"}})

	a, err := r.Resolve(context.Background(), "site.shp")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Reprojecting the bounding box itself must give the same extent.
	boxGeo, err := r.projector.Reproject(proj.Bound().ToPolygon(), "EPSG:32630", geo.WGS84)
	if err != nil {
		t.Fatal(err)
	}
	want := geo.BBox(boxGeo.Bound())
	for i := range want {
		if math.Abs(a.BBox[i]-want[i]) > 1e-9 {
			t.Errorf("bbox[%d]: expected %v, got %v", i, want[i], a.BBox[i])
		}
	}
	if a.BBox != [4]float64{-1.5, 42, -0.5, 42.6} {
		t.Errorf("Unexpected bbox %v", a.BBox)
	}
	if len(a.Zones) != 1 || a.Zones[0] != "T30" {
		t.Errorf("Expected [T30], got %v", a.Zones)
	}
	if a.CRS != "EPSG:32630" || len(a.Geometry) != 2 {
		t.Errorf("Expected source geometry kept in EPSG:32630, got %s with %d polygons", a.CRS, len(a.Geometry))
	}
}

func TestResolver_Errors(t *testing.T) {
	r := newTestResolver(&fakeBoundaries{}, fakeVectors{
		"points.geojson": {Geometry: orb.MultiPoint{{1, 1}}},
	})

	if _, err := r.Resolve(context.Background(), "points.geojson"); !errors.Is(err, ErrGeometry) {
		t.Errorf("Expected ErrGeometry, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "missing.gpkg"); !errors.Is(err, ErrParse) {
		t.Errorf("Expected ErrParse, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "deimsid:https://deims.org/none"); err == nil {
		t.Error("Expected error for unknown site")
	}
}

func TestAreaOfInterest_In(t *testing.T) {
	r := newTestResolver(nil, fakeVectors{"a.geojson": {Geometry: box(-1, 42, 1, 43)}})
	a, err := r.Resolve(context.Background(), "a.geojson")
	if err != nil {
		t.Fatal(err)
	}

	mp, err := a.In("EPSG:32630", r.projector)
	if err != nil {
		t.Fatalf("In failed: %v", err)
	}
	b := mp.Bound()
	if b.Min != (orb.Point{400000, 4200000}) || b.Max != (orb.Point{600000, 4300000}) {
		t.Errorf("Unexpected projected bound %v", b)
	}

	same, err := a.In(geo.WGS84, r.projector)
	if err != nil {
		t.Fatal(err)
	}
	if !orb.Equal(same, a.Geographic) {
		t.Errorf("Expected geographic geometry, got %v", same)
	}
}
