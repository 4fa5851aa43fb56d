// Package gdal implements the raster engine, the CRS projector and the OGR
// vector loader on top of GDAL through godal.
package gdal

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// Register loads the GDAL drivers. It is safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// errLogger forwards GDAL warnings to logger and turns failures into errors.
func errLogger(logger *slog.Logger) godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			logger.Debug("gdal", slog.Int("code", code), slog.String("msg", msg))
			return nil
		}
		return errors.New(msg)
	}
}

// spatialRef parses any CRS definition GDAL accepts (EPSG:n, WKT, PROJ).
// godal sets the traditional GIS axis order, so EPSG:4326 is lon/lat.
func spatialRef(crs string) (*godal.SpatialRef, error) {
	sr, err := godal.NewSpatialRef(crs)
	if err != nil {
		return nil, fmt.Errorf("parsing crs %q: %w", crs, err)
	}
	return sr, nil
}
