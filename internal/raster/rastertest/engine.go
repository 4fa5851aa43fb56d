// Package rastertest provides an in-memory raster.Engine whose rasters are
// small JSON documents describing only their grid. It is used to test the
// compositing flow without GDAL.
package rastertest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster"
)

// Dataset is a fake open raster.
type Dataset struct {
	engine *Engine
	meta   raster.Metadata
	// Sources lists the files merged into this dataset, first wins.
	Sources []string
	closed  bool
}

// Metadata implements raster.Dataset.
func (d *Dataset) Metadata() raster.Metadata { return d.meta }

// Close implements raster.Dataset.
func (d *Dataset) Close() error {
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()
	if d.closed {
		return fmt.Errorf("dataset closed twice")
	}
	d.closed = true
	d.engine.open--
	return nil
}

// file is the on-disk form of a fake raster.
type file struct {
	Meta    raster.Metadata `json:"meta"`
	Sources []string        `json:"sources,omitempty"`
}

// Engine is the fake raster.Engine. It counts open datasets so tests can
// check that every dataset is released.
type Engine struct {
	mu     sync.Mutex
	open   int
	Writes []string

	// FailOpen makes Open fail for the listed paths.
	FailOpen map[string]error
}

// NewEngine creates a fake engine.
func NewEngine() *Engine {
	return &Engine{FailOpen: map[string]error{}}
}

// OpenCount returns the number of datasets not yet closed.
func (e *Engine) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

func (e *Engine) track(meta raster.Metadata, sources []string) *Dataset {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open++
	return &Dataset{engine: e, meta: meta, Sources: sources}
}

// WriteTile writes a fake raster file.
func WriteTile(path string, meta raster.Metadata) error {
	data, err := json.Marshal(file{Meta: meta, Sources: []string{path}})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadTile reads back a fake raster file.
func ReadTile(path string) (raster.Metadata, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return raster.Metadata{}, nil, err
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return raster.Metadata{}, nil, fmt.Errorf("not a raster: %w", err)
	}
	return f.Meta, f.Sources, nil
}

// Open implements raster.Engine.
func (e *Engine) Open(path string) (raster.Dataset, error) {
	if err := e.FailOpen[path]; err != nil {
		return nil, err
	}
	meta, sources, err := ReadTile(path)
	if err != nil {
		return nil, err
	}
	return e.track(meta, sources), nil
}

// Merge implements raster.Engine. The output grid covers the union of the
// source extents at the first source's resolution and CRS.
func (e *Engine) Merge(srcs []raster.Dataset) (raster.Dataset, error) {
	if len(srcs) == 0 {
		return nil, fmt.Errorf("no sources")
	}
	first := srcs[0].Metadata()
	rx, ry := first.Transform.Resolution()

	var (
		b       orb.Bound
		sources []string
	)
	for i, s := range srcs {
		m := s.Metadata()
		if m.CRS != first.CRS {
			return nil, fmt.Errorf("fake engine cannot reproject %s to %s", m.CRS, first.CRS)
		}
		if i == 0 {
			b = m.Bound()
		} else {
			b = b.Union(m.Bound())
		}
		if d, ok := s.(*Dataset); ok {
			sources = append(sources, d.Sources...)
		}
	}

	meta := first
	meta.Transform = geo.Affine{b.Min[0], rx, 0, b.Max[1], 0, -ry}
	meta.Width = int(math.Round((b.Max[0] - b.Min[0]) / rx))
	meta.Height = int(math.Round((b.Max[1] - b.Min[1]) / ry))
	return e.track(meta, sources), nil
}

// Mask implements raster.Engine. Cropping snaps the geometry extent to
// the source grid.
func (e *Engine) Mask(ds raster.Dataset, g orb.MultiPolygon, crop bool) (raster.Dataset, error) {
	meta := ds.Metadata()
	var sources []string
	if d, ok := ds.(*Dataset); ok {
		sources = d.Sources
	}
	if !crop {
		return e.track(meta, sources), nil
	}

	b := meta.Bound()
	gb := g.Bound()
	minX, minY := math.Max(b.Min[0], gb.Min[0]), math.Max(b.Min[1], gb.Min[1])
	maxX, maxY := math.Min(b.Max[0], gb.Max[0]), math.Min(b.Max[1], gb.Max[1])
	if minX >= maxX || minY >= maxY {
		return nil, fmt.Errorf("geometry does not intersect raster")
	}

	rx, ry := meta.Transform.Resolution()
	c0 := math.Floor((minX - b.Min[0]) / rx)
	c1 := math.Ceil((maxX - b.Min[0]) / rx)
	r0 := math.Floor((b.Max[1] - maxY) / ry)
	r1 := math.Ceil((b.Max[1] - minY) / ry)

	meta.Transform = geo.Affine{b.Min[0] + c0*rx, rx, 0, b.Max[1] - r0*ry, 0, -ry}
	meta.Width = int(c1 - c0)
	meta.Height = int(r1 - r0)
	return e.track(meta, sources), nil
}

// Write implements raster.Engine.
func (e *Engine) Write(path string, ds raster.Dataset, meta raster.Metadata) error {
	var sources []string
	if d, ok := ds.(*Dataset); ok {
		sources = d.Sources
	}
	data, err := json.Marshal(file{Meta: meta, Sources: sources})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	e.mu.Lock()
	e.Writes = append(e.Writes, path)
	e.mu.Unlock()
	return nil
}
