package geo

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

func box(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()
}

func TestFootprint(t *testing.T) {
	a := Affine{500000, 10, 0, 4800000, 0, -10}
	fp := Footprint(a, 100, 50)

	b := fp.Bound()
	if b.Min != (orb.Point{500000, 4799500}) {
		t.Errorf("Expected min (500000, 4799500), got %v", b.Min)
	}
	if b.Max != (orb.Point{501000, 4800000}) {
		t.Errorf("Expected max (501000, 4800000), got %v", b.Max)
	}
	if len(fp[0]) != 5 || fp[0][0] != fp[0][4] {
		t.Errorf("Expected closed ring of 5 points, got %v", fp[0])
	}
}

func TestAffine_Invert(t *testing.T) {
	a := Affine{100, 2, 0, 50, 0, -2}
	col, row, err := a.Invert(a.Apply(3, 4))
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	if col != 3 || row != 4 {
		t.Errorf("Expected (3, 4), got (%v, %v)", col, row)
	}

	if _, _, err := (Affine{0, 1, 0.5, 0, 0, -1}).Invert(orb.Point{}); err == nil {
		t.Error("Expected error for rotated transform")
	}

	x, y := a.Resolution()
	if x != 2 || y != 2 {
		t.Errorf("Expected resolution (2, 2), got (%v, %v)", x, y)
	}
}

func TestUnion(t *testing.T) {
	mp, err := Union(
		box(0, 0, 1, 1),
		orb.MultiPolygon{box(2, 2, 3, 3), box(5, 5, 6, 6)},
		orb.Collection{box(-1, -1, 0, 0), orb.Point{9, 9}},
	)
	if err != nil {
		t.Fatalf("Union failed: %v", err)
	}
	if len(mp) != 4 {
		t.Fatalf("Expected 4 polygons, got %d", len(mp))
	}
	if got := BBox(mp.Bound()); got != [4]float64{-1, -1, 6, 6} {
		t.Errorf("Expected bbox [-1 -1 6 6], got %v", got)
	}

	_, err = Union(orb.Point{1, 1}, orb.LineString{{0, 0}, {1, 1}})
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
}

func TestIntersects(t *testing.T) {
	fp := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}

	tests := []struct {
		name string
		aoi  orb.MultiPolygon
		want bool
	}{
		{"inside", orb.MultiPolygon{box(2, 2, 4, 4)}, true},
		{"partial", orb.MultiPolygon{box(8, 8, 12, 12)}, true},
		{"covering", orb.MultiPolygon{box(-5, -5, 15, 15)}, true},
		{"disjoint", orb.MultiPolygon{box(20, 20, 30, 30)}, false},
		{"touching edge", orb.MultiPolygon{box(10, 0, 20, 10)}, false},
		{"one of many", orb.MultiPolygon{box(20, 20, 30, 30), box(1, 1, 2, 2)}, true},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intersects(fp, tt.aoi); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIntersects_DoesNotModifyInput(t *testing.T) {
	aoi := orb.MultiPolygon{box(5, 5, 15, 15)}
	before := aoi.Clone()

	Intersects(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, aoi)

	if !orb.Equal(aoi, before) {
		t.Errorf("Expected input unchanged, got %v", aoi)
	}
}

func TestTransform(t *testing.T) {
	shift := func(xs, ys []float64) error {
		for i := range xs {
			xs[i] += 10
			ys[i] -= 1
		}
		return nil
	}

	src := box(0, 0, 1, 1)
	out, err := Transform(src, shift)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if got := out.Bound(); got.Min != (orb.Point{10, -1}) || got.Max != (orb.Point{11, 0}) {
		t.Errorf("Unexpected bound %v", got)
	}
	if src.Bound().Min != (orb.Point{0, 0}) {
		t.Error("Expected source geometry untouched")
	}

	p, err := Transform(orb.Point{1, 1}, shift)
	if err != nil {
		t.Fatalf("Transform point failed: %v", err)
	}
	if p != (orb.Point{11, 0}) {
		t.Errorf("Expected (11, 0), got %v", p)
	}

	wantErr := errors.New("boom")
	if _, err := Transform(src, func(_, _ []float64) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Expected boom, got %v", err)
	}
}
