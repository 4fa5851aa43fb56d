package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/wekeo-mosaic/internal/config"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo/geotest"
	"github.com/robert-malhotra/wekeo-mosaic/internal/pipeline"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster"
	"github.com/robert-malhotra/wekeo-mosaic/internal/raster/rastertest"
	"github.com/robert-malhotra/wekeo-mosaic/internal/report"
	"github.com/robert-malhotra/wekeo-mosaic/internal/stac"
)

const utm30 = "EPSG:32630"

// blockingRunner records the request and blocks until released.
type blockingRunner struct {
	release chan struct{}
	got     chan pipeline.Request
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), got: make(chan pipeline.Request, 1)}
}

func (b *blockingRunner) Run(ctx context.Context, req pipeline.Request) (*report.Report, error) {
	b.got <- req
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	rep := report.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rep.Add(report.OK(report.StageFetch, "NDVI", ""))
	rep.SetOutputs([]string{"mosaic_20230615_NDVI_rec.tif"})
	rep.Finish(time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), ctx.Err())
	return rep, ctx.Err()
}

func newTestServer(t *testing.T, workDir string, runner Runner, opts ...func(*Handlers)) (*httptest.Server, *Handlers) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	projector := geotest.NewProjector(map[string]geotest.Linear{
		utm30: {Scale: 100000, OffsetX: 500000},
	})
	items := stac.NewItemBuilder(rastertest.NewEngine(), projector).WithLogger(logger)

	h := NewHandlers(Options{
		BaseURL:    "http://example.com/",
		WorkDir:    workDir,
		RunTimeout: time.Minute,
	}, config.NewDatasetRegistry(), items, runner, logger)
	for _, opt := range opts {
		opt(h)
	}

	srv := httptest.NewServer(NewRouter(h, logger))
	t.Cleanup(srv.Close)
	return srv, h
}

const viID = "EO:EEA:DAT:CLMS_HRVPP_VI"

func writeOutput(t *testing.T, dir, name string) {
	t.Helper()
	writeDatasetOutput(t, dir, name, viID)
}

func writeDatasetOutput(t *testing.T, dir, name, datasetID string) {
	t.Helper()
	err := rastertest.WriteTile(filepath.Join(dir, name), raster.Metadata{
		Width:     80,
		Height:    80,
		Bands:     1,
		Transform: geo.Affine{410000, 1000, 0, 4290000, 0, -1000},
		CRS:       utm30,
		Tags:      map[string]string{raster.TagDataset: datasetID},
	})
	if err != nil {
		t.Fatalf("failed to write output: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, t.TempDir(), nil)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("Expected X-Request-ID header")
	}
}

func TestLandingPage(t *testing.T) {
	srv, _ := newTestServer(t, t.TempDir(), nil)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var landing stac.LandingPage
	if err := json.NewDecoder(resp.Body).Decode(&landing); err != nil {
		t.Fatalf("failed to decode landing page: %v", err)
	}

	if landing.Type != "Catalog" {
		t.Errorf("Expected type Catalog, got %s", landing.Type)
	}

	var items int
	for _, l := range landing.Links {
		if l.Rel == "items" {
			items++
		}
		if l.Rel == "self" && l.Href != "http://example.com/" {
			t.Errorf("Expected self link http://example.com/, got %s", l.Href)
		}
	}
	if items != 4 {
		t.Errorf("Expected 4 items links, got %d", items)
	}
}

func TestItems(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "mosaic_20230615_NDVI_rec.tif")
	writeOutput(t, dir, "mosaic_20230615_NDVI.tif")
	srv, _ := newTestServer(t, dir, nil)

	resp, err := http.Get(srv.URL + "/collections/VPP_Index/items")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Expected Content-Type application/geo+json, got %s", ct)
	}

	var ic struct {
		Features []struct {
			ID     string    `json:"id"`
			BBox   []float64 `json:"bbox"`
			Assets map[string]struct {
				Href string `json:"href"`
			} `json:"assets"`
		} `json:"features"`
		NumberReturned int `json:"numberReturned"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		t.Fatalf("failed to decode items: %v", err)
	}

	if ic.NumberReturned != 1 || len(ic.Features) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(ic.Features))
	}
	if ic.Features[0].ID != "mosaic_20230615_NDVI" {
		t.Errorf("Expected id mosaic_20230615_NDVI, got %s", ic.Features[0].ID)
	}
	if href := ic.Features[0].Assets["data"].Href; href != "http://example.com/outputs/mosaic_20230615_NDVI_rec.tif" {
		t.Errorf("Unexpected data asset href: %s", href)
	}
}

func TestItems_OnlyListsOwnDataset(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "mosaic_20230615_NDVI_rec.tif")
	writeDatasetOutput(t, dir, "mosaic_20230615_PPI_rec.tif", "EO:EEA:DAT:CLMS_HRVPP_ST")
	srv, _ := newTestServer(t, dir, nil)

	tests := []struct {
		collection string
		wantID     string
	}{
		{collection: "VPP_Index", wantID: "mosaic_20230615_NDVI"},
		{collection: "VPP_ST", wantID: "mosaic_20230615_PPI"},
	}

	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/collections/" + tt.collection + "/items")
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			var ic struct {
				Features []struct {
					ID string `json:"id"`
				} `json:"features"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
				t.Fatalf("failed to decode items: %v", err)
			}
			if len(ic.Features) != 1 || ic.Features[0].ID != tt.wantID {
				t.Errorf("Expected only %s, got %+v", tt.wantID, ic.Features)
			}
		})
	}
}

func TestItems_MissingWorkDir(t *testing.T) {
	srv, _ := newTestServer(t, filepath.Join(t.TempDir(), "missing"), nil)

	resp, err := http.Get(srv.URL + "/collections/VPP_Index/items")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestItems_UnknownDataset(t *testing.T) {
	srv, _ := newTestServer(t, t.TempDir(), nil)

	resp, err := http.Get(srv.URL + "/collections/VPP_Unknown/items")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestOutput(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "mosaic_20230615_NDVI_rec.tif")
	writeOutput(t, dir, "mosaic_20230615_NDVI.tif")
	srv, _ := newTestServer(t, dir, nil)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "final output", path: "/outputs/mosaic_20230615_NDVI_rec.tif", status: http.StatusOK},
		{name: "intermediate mosaic", path: "/outputs/mosaic_20230615_NDVI.tif", status: http.StatusNotFound},
		{name: "missing output", path: "/outputs/mosaic_20230616_NDVI_rec.tif", status: http.StatusNotFound},
		{name: "escaped traversal", path: "/outputs/..%2Fmosaic_20230615_NDVI_rec.tif", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status == http.StatusOK {
				if ct := resp.Header.Get("Content-Type"); ct != stac.MediaTypeGeoTIFF {
					t.Errorf("Expected GeoTIFF content type, got %s", ct)
				}
				body, _ := io.ReadAll(resp.Body)
				want, _ := os.ReadFile(filepath.Join(dir, "mosaic_20230615_NDVI_rec.tif"))
				if string(body) != string(want) {
					t.Error("Expected file contents to be served")
				}
			}
		})
	}
}

func postRun(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestRuns_Lifecycle(t *testing.T) {
	runner := newBlockingRunner()
	dir := t.TempDir()
	srv, h := newTestServer(t, dir, runner)

	// No run yet
	resp, err := http.Get(srv.URL + "/runs/latest")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 before any run, got %d", resp.StatusCode)
	}

	body := `{"dataset":"VPP_Index","shape":"deimsid:abc","start":"2023-06-01","end":"2023-06-30","products":["NDVI"]}`
	resp = postRun(t, srv, body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}

	req := <-runner.got
	if req.DatasetID != "EO:EEA:DAT:CLMS_HRVPP_VI" {
		t.Errorf("Expected dataset alias to be resolved, got %s", req.DatasetID)
	}
	if req.WorkDir != dir {
		t.Errorf("Expected work dir %s, got %s", dir, req.WorkDir)
	}

	// Second run while busy
	resp = postRun(t, srv, body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/runs/latest")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var status RunStatus
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if !status.Running {
		t.Error("Expected run to be in progress")
	}

	close(runner.release)
	h.Wait()

	resp, err = http.Get(srv.URL + "/runs/latest")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	status = RunStatus{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Running {
		t.Error("Expected run to be finished")
	}
	if status.Report == nil || len(status.Report.Outputs) != 1 {
		t.Fatalf("Expected report with 1 output, got %+v", status.Report)
	}
	if status.Report.Counts.OK != 1 {
		t.Errorf("Expected 1 ok result, got %d", status.Report.Counts.OK)
	}
}

func TestRuns_InvalidRequests(t *testing.T) {
	srv, _ := newTestServer(t, t.TempDir(), newBlockingRunner())

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `{"dataset":`},
		{name: "unknown field", body: `{"dataset":"VPP_Index","bogus":1}`},
		{name: "unknown dataset", body: `{"dataset":"VPP_Unknown","shape":"a.geojson","start":"2023-06-01","end":"2023-06-30"}`},
		{name: "missing dates", body: `{"dataset":"VPP_Index","shape":"a.geojson"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRun(t, srv, tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestRuns_CancelledWithServerContext(t *testing.T) {
	runner := newBlockingRunner()
	ctx, cancel := context.WithCancel(context.Background())
	srv, h := newTestServer(t, t.TempDir(), runner, func(h *Handlers) { h.WithContext(ctx) })

	resp := postRun(t, srv, `{"dataset":"SLSTR","shape":"a.geojson","start":"2023-06-01","end":"2023-06-30"}`)
	resp.Body.Close()
	<-runner.got

	cancel()
	h.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		t.Error("Expected run to be finished")
	}
	if h.latest == nil || !errors.Is(h.latest.Err(), context.Canceled) {
		t.Errorf("Expected cancelled report, got %v", h.latest)
	}
}

func TestRuns_Disabled(t *testing.T) {
	srv, _ := newTestServer(t, t.TempDir(), nil)

	resp := postRun(t, srv, `{}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("Expected status 501, got %d", resp.StatusCode)
	}
}

func TestNotFoundRoute(t *testing.T) {
	srv, _ := newTestServer(t, t.TempDir(), nil)

	resp, err := http.Get(srv.URL + "/search")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}
