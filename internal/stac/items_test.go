package stac

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo/geotest"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster/rastertest"
)

const utm30 = "EPSG:32630"

func newBuilder() *ItemBuilder {
	projector := geotest.NewProjector(map[string]geotest.Linear{
		utm30: {Scale: 100000, OffsetX: 500000},
	})
	return NewItemBuilder(rastertest.NewEngine(), projector).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const (
	viID  = "EO:EEA:DAT:CLMS_HRVPP_VI"
	vppID = "EO:EEA:DAT:CLMS_HRVPP_VPP"
)

func writeOutput(t *testing.T, dir, name string) string {
	t.Helper()
	return writeDatasetOutput(t, dir, name, viID)
}

func writeDatasetOutput(t *testing.T, dir, name, datasetID string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	meta := raster.Metadata{
		Width:     80,
		Height:    80,
		Bands:     1,
		Transform: geo.Affine{410000, 1000, 0, 4290000, 0, -1000},
		CRS:       utm30,
	}
	if datasetID != "" {
		meta.Tags = map[string]string{raster.TagDataset: datasetID}
	}
	require.NoError(t, rastertest.WriteTile(path, meta))
	return path
}

func href(name string) string { return "http://localhost/outputs/" + name }

func TestItemBuilder_Item(t *testing.T) {
	dir := t.TempDir()
	path := writeOutput(t, dir, "mosaic_20230615_NDVI_rec.tif")

	item, err := newBuilder().Item("VPP_Index", path, href)
	require.NoError(t, err)

	assert.Equal(t, "mosaic_20230615_NDVI", item.Id)
	assert.Equal(t, "VPP_Index", item.Collection)
	assert.Equal(t, "2023-06-15T00:00:00Z", item.Properties["datetime"])
	assert.Equal(t, "NDVI", item.Properties["product"])

	require.Len(t, item.Bbox, 4)
	assert.InDelta(t, -0.9, item.Bbox[0], 1e-9)
	assert.InDelta(t, 42.1, item.Bbox[1], 1e-9)
	assert.InDelta(t, -0.1, item.Bbox[2], 1e-9)
	assert.InDelta(t, 42.9, item.Bbox[3], 1e-9)

	data, ok := item.Assets["data"]
	require.True(t, ok)
	assert.Equal(t, "http://localhost/outputs/mosaic_20230615_NDVI_rec.tif", data.Href)
	assert.Equal(t, MediaTypeGeoTIFF, data.Type)

	encoded, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"type":"Polygon"`)
}

func TestItemBuilder_ItemRejectsNonOutputs(t *testing.T) {
	dir := t.TempDir()
	path := writeOutput(t, dir, "mosaic_20230615_NDVI.tif")

	_, err := newBuilder().Item("VPP_Index", path, href)
	assert.True(t, errors.Is(err, ErrNotOutput))
}

func TestItemBuilder_Items(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "mosaic_20230616_NDVI_rec.tif")
	writeOutput(t, dir, "mosaic_20230615_LAI_rec.tif")
	// Unreadable final output is left out
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mosaic_20230617_NDVI_rec.tif"), []byte("junk"), 0o644))
	// Bad date token
	writeOutput(t, dir, "mosaic_2023XX15_NDVI_rec.tif")
	// Other dataset, untagged
	writeDatasetOutput(t, dir, "mosaic_2020_SOSD_rec.tif", vppID)
	writeDatasetOutput(t, dir, "mosaic_20230618_NDVI_rec.tif", "")

	ic, err := newBuilder().Items(context.Background(), "VPP_Index", viID, dir, href)
	require.NoError(t, err)

	assert.Equal(t, "FeatureCollection", ic.Type)
	require.Len(t, ic.Features, 2)
	assert.Equal(t, "mosaic_20230615_LAI", ic.Features[0].Id)
	assert.Equal(t, "mosaic_20230616_NDVI", ic.Features[1].Id)
	assert.Equal(t, 2, ic.NumberReturned)
	assert.Equal(t, 2, *ic.NumberMatched)
}

func TestItemBuilder_ItemsEmptyDir(t *testing.T) {
	ic, err := newBuilder().Items(context.Background(), "VPP_Index", viID, t.TempDir(), href)
	require.NoError(t, err)
	assert.NotNil(t, ic.Features)
	assert.Empty(t, ic.Features)
}

func TestItemBuilder_ItemsPerDataset(t *testing.T) {
	dir := t.TempDir()
	writeDatasetOutput(t, dir, "mosaic_20230615_NDVI_rec.tif", viID)
	writeDatasetOutput(t, dir, "mosaic_2020_SOSD_rec.tif", vppID)

	ic, err := newBuilder().Items(context.Background(), "VPP_Pheno", vppID, dir, href)
	require.NoError(t, err)

	require.Len(t, ic.Features, 1)
	item := ic.Features[0]
	assert.Equal(t, "mosaic_2020_SOSD", item.Id)
	assert.Equal(t, "2020-01-01T00:00:00Z", item.Properties["datetime"])
	assert.Equal(t, "SOSD", item.Properties["product"])
}
