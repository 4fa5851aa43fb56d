package gdal

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
)

// Projector implements geo.Projector with PROJ transforms.
type Projector struct{}

// NewProjector creates a projector and registers the GDAL drivers.
func NewProjector() Projector {
	Register()
	return Projector{}
}

// Reproject implements geo.Projector.
func (Projector) Reproject(g orb.Geometry, from, to string) (orb.Geometry, error) {
	if from == to {
		return orb.Clone(g), nil
	}

	src, err := spatialRef(from)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := spatialRef(to)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("creating transform: %w", err)
	}
	defer tr.Close()

	return geo.Transform(g, func(xs, ys []float64) error {
		ok := make([]bool, len(xs))
		if err := tr.TransformEx(xs, ys, nil, ok); err != nil {
			return fmt.Errorf("transform error: %w", err)
		}
		for i := range ok {
			if !ok[i] {
				return fmt.Errorf("point %d (%g, %g) cannot be reprojected", i, xs[i], ys[i])
			}
		}
		return nil
	})
}

// IsGeographic implements geo.Projector.
func (Projector) IsGeographic(crs string) (bool, error) {
	sr, err := spatialRef(crs)
	if err != nil {
		return false, err
	}
	defer sr.Close()
	return sr.Geographic(), nil
}
