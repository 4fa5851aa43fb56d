package gdal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster"
)

// Engine implements raster.Engine with GDAL warps and translations.
// Intermediate datasets are kept in memory.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine and registers the GDAL drivers.
func NewEngine() *Engine {
	Register()
	return &Engine{logger: slog.Default()}
}

// WithLogger sets a custom logger
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

type dataset struct {
	ds   *godal.Dataset
	meta raster.Metadata
}

func (d *dataset) Metadata() raster.Metadata { return d.meta }

func (d *dataset) Close() error { return d.ds.Close() }

func unwrap(ds raster.Dataset) (*dataset, error) {
	d, ok := ds.(*dataset)
	if !ok {
		return nil, fmt.Errorf("dataset %T was not opened by the gdal engine", ds)
	}
	return d, nil
}

// Open implements raster.Engine.
func (e *Engine) Open(path string) (raster.Dataset, error) {
	ds, err := godal.Open(path, godal.RasterOnly(), godal.ErrLogger(errLogger(e.logger)))
	if err != nil {
		return nil, err
	}
	meta, err := metadata(ds)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &dataset{ds: ds, meta: meta}, nil
}

func metadata(ds *godal.Dataset) (raster.Metadata, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.Metadata{}, fmt.Errorf("reading geotransform: %w", err)
	}

	meta := raster.Metadata{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Bands:     st.NBands,
		Transform: geo.Affine(gt),
	}

	if sr := ds.SpatialRef(); sr != nil {
		wkt, err := sr.WKT()
		sr.Close()
		if err != nil {
			return raster.Metadata{}, fmt.Errorf("exporting crs: %w", err)
		}
		meta.CRS = wkt
	}
	if meta.CRS == "" {
		return raster.Metadata{}, fmt.Errorf("raster has no coordinate reference system")
	}

	if bands := ds.Bands(); len(bands) > 0 {
		if nd, ok := bands[0].NoData(); ok {
			meta.NoData = &nd
		}
	}
	if v := ds.Metadata(raster.TagDataset); v != "" {
		meta.Tags = map[string]string{raster.TagDataset: v}
	}
	return meta, nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Merge implements raster.Engine. Sources are warped in reverse order so
// that the first source is painted last and wins where tiles overlap.
func (e *Engine) Merge(srcs []raster.Dataset) (raster.Dataset, error) {
	if len(srcs) == 0 {
		return nil, fmt.Errorf("merge needs at least one source")
	}

	gds := make([]*godal.Dataset, len(srcs))
	for i, s := range srcs {
		d, err := unwrap(s)
		if err != nil {
			return nil, err
		}
		gds[len(srcs)-1-i] = d.ds
	}

	first := srcs[0].Metadata()
	rx, ry := first.Transform.Resolution()
	switches := []string{
		"-of", "MEM",
		"-t_srs", first.CRS,
		"-tr", ftoa(rx), ftoa(ry),
		"-r", "near",
	}
	if first.NoData != nil {
		switches = append(switches, "-dstnodata", ftoa(*first.NoData))
	}

	out, err := godal.Warp("", gds, switches)
	if err != nil {
		return nil, fmt.Errorf("warp: %w", err)
	}

	meta, err := metadata(out)
	if err != nil {
		out.Close()
		return nil, err
	}
	return &dataset{ds: out, meta: meta}, nil
}

// Mask implements raster.Engine. The geometry becomes a GeoPackage cutline
// carrying the dataset CRS. Pixels outside it take the source nodata value,
// or 0 when the source declares none.
func (e *Engine) Mask(ds raster.Dataset, g orb.MultiPolygon, crop bool) (raster.Dataset, error) {
	d, err := unwrap(ds)
	if err != nil {
		return nil, err
	}

	cutline, cleanup, err := writeCutline(g, d.meta.CRS)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rx, ry := d.meta.Transform.Resolution()
	switches := []string{
		"-of", "MEM",
		"-cutline", cutline,
		"-tr", ftoa(rx), ftoa(ry),
	}
	if crop {
		switches = append(switches, "-crop_to_cutline")
	}
	fill := 0.0
	if d.meta.NoData != nil {
		fill = *d.meta.NoData
	}
	switches = append(switches, "-dstnodata", ftoa(fill))

	out, err := d.ds.Warp("", switches)
	if err != nil {
		return nil, fmt.Errorf("cutline warp: %w", err)
	}

	meta, err := metadata(out)
	if err != nil {
		out.Close()
		return nil, err
	}
	meta.NoData = &fill
	return &dataset{ds: out, meta: meta}, nil
}

func writeCutline(g orb.MultiPolygon, crs string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "cutline")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }
	path := filepath.Join(dir, "cutline.gpkg")

	fail := func(err error) (string, func(), error) {
		cleanup()
		return "", nil, err
	}

	sr, err := spatialRef(crs)
	if err != nil {
		return fail(err)
	}
	defer sr.Close()

	data, err := wkb.Marshal(g)
	if err != nil {
		return fail(fmt.Errorf("encoding cutline: %w", err))
	}
	geom, err := godal.NewGeometryFromWKB(data, sr)
	if err != nil {
		return fail(fmt.Errorf("decoding cutline: %w", err))
	}
	defer geom.Close()

	vds, err := godal.CreateVector(godal.DriverName("GPKG"), path)
	if err != nil {
		return fail(err)
	}
	layer, err := vds.CreateLayer("cutline", sr, godal.GTMultiPolygon)
	if err != nil {
		vds.Close()
		return fail(err)
	}
	feat, err := layer.NewFeature(geom)
	if err != nil {
		vds.Close()
		return fail(err)
	}
	feat.Close()
	if err := vds.Close(); err != nil {
		return fail(err)
	}
	return path, cleanup, nil
}

// Write implements raster.Engine. The output is a tiled, deflate-compressed
// GeoTIFF whose header is taken from meta.
func (e *Engine) Write(path string, ds raster.Dataset, meta raster.Metadata) error {
	d, err := unwrap(ds)
	if err != nil {
		return err
	}

	out, err := d.ds.Translate(path, []string{
		"-of", "GTiff",
		"-co", "TILED=YES",
		"-co", "COMPRESS=DEFLATE",
	})
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}

	if err := applyMetadata(out, meta); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func applyMetadata(ds *godal.Dataset, meta raster.Metadata) error {
	if err := ds.SetGeoTransform([6]float64(meta.Transform)); err != nil {
		return fmt.Errorf("setting geotransform: %w", err)
	}

	sr, err := spatialRef(meta.CRS)
	if err != nil {
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("setting crs: %w", err)
	}

	if meta.NoData != nil {
		for _, b := range ds.Bands() {
			if err := b.SetNoData(*meta.NoData); err != nil {
				return fmt.Errorf("setting nodata: %w", err)
			}
		}
	}

	for k, v := range meta.Tags {
		if err := ds.SetMetadata(k, v); err != nil {
			return fmt.Errorf("setting metadata %s: %w", k, err)
		}
	}
	return nil
}
