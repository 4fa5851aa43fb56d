package workdir

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCleaner_Clean(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"VI_20230615T103031_S2A_T30TUK-010m_V101_NDVI.tif",
		"mosaic_20230615_NDVI.tif",
		"mosaic_20230615_NDVI_rec.tif",
		"mosaic_20230615_LAI_rec.tif",
		"download.zip.part",
	}
	for _, f := range files {
		os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644)
	}
	os.MkdirAll(filepath.Join(dir, "bundle", "nested"), 0o755)
	os.WriteFile(filepath.Join(dir, "bundle", "nested", "x_rec.tif"), []byte("x"), 0o644)

	c := NewCleaner(slog.New(slog.NewTextHandler(io.Discard, nil)))

	removed, err := c.Clean(context.Background(), dir)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if len(removed) != 4 {
		t.Errorf("Expected 4 removed entries, got %v", removed)
	}

	outputs, err := Outputs(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"mosaic_20230615_LAI_rec.tif", "mosaic_20230615_NDVI_rec.tif"}
	if !reflect.DeepEqual(outputs, want) {
		t.Errorf("Expected %v, got %v", want, outputs)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("Expected only final outputs to remain, got %d entries", len(entries))
	}
}

func TestCleaner_Idempotent(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.tif"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "mosaic_20230615_NDVI_rec.tif"), []byte("x"), 0o644)

	c := NewCleaner(nil)
	if _, err := c.Clean(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadDir(dir)

	removed, err := c.Clean(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 0 {
		t.Errorf("Expected second clean to remove nothing, got %v", removed)
	}
	second, _ := os.ReadDir(dir)
	if len(first) != len(second) || first[0].Name() != second[0].Name() {
		t.Errorf("Directory changed between cleans: %v vs %v", first, second)
	}
}

func TestEnsure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pyhda")
	if err := Ensure(dir); err != nil {
		t.Fatal(err)
	}
	if err := Ensure(dir); err != nil {
		t.Errorf("Expected Ensure on existing dir to succeed, got %v", err)
	}
}
