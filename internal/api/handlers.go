package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/wekeo-mosaic/internal/composite"
	"github.com/robert-malhotra/wekeo-mosaic/internal/config"
	"github.com/robert-malhotra/wekeo-mosaic/internal/pipeline"
	"github.com/robert-malhotra/wekeo-mosaic/internal/report"
	"github.com/robert-malhotra/wekeo-mosaic/internal/stac"
)

// maxRunBody bounds the size of a POST /runs body.
const maxRunBody = 1 << 20

// Runner executes a pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*report.Report, error)
}

// Options configures the handlers.
type Options struct {
	// BaseURL is the public URL used in links.
	BaseURL string

	// WorkDir holds the final composites served by the API and receives
	// the outputs of runs started through it.
	WorkDir string

	// RunTimeout bounds each run started through POST /runs.
	RunTimeout time.Duration
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	Dataset  string   `json:"dataset"`
	Shape    string   `json:"shape"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Products []string `json:"products,omitempty"`
}

// RunStatus is the body of GET /runs/latest.
type RunStatus struct {
	Running bool            `json:"running"`
	Request *RunRequest     `json:"request,omitempty"`
	Report  *report.Summary `json:"report,omitempty"`
}

// Handlers contains all HTTP handlers of the results server.
type Handlers struct {
	opts     Options
	datasets *config.DatasetRegistry
	items    *stac.ItemBuilder
	runner   Runner
	logger   *slog.Logger

	// base is the parent context of background runs.
	base context.Context
	runs sync.WaitGroup

	mu      sync.Mutex
	running bool
	request *RunRequest
	latest  *report.Report
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// A nil runner disables POST /runs.
func NewHandlers(
	opts Options,
	datasets *config.DatasetRegistry,
	items *stac.ItemBuilder,
	runner Runner,
	logger *slog.Logger,
) *Handlers {
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Handlers{
		opts:     opts,
		datasets: datasets,
		items:    items,
		runner:   runner,
		logger:   logger,
		base:     context.Background(),
	}
}

// WithContext sets the parent context of background runs. Cancelling it
// cancels a run in progress.
func (h *Handlers) WithContext(ctx context.Context) *Handlers {
	h.base = ctx
	return h
}

// Wait blocks until the background run, if any, has finished.
func (h *Handlers) Wait() {
	h.runs.Wait()
}

// Health returns the service status.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}
	if _, err := os.Stat(h.opts.WorkDir); err != nil {
		response["workdir"] = "missing"
	}

	WriteJSON(w, http.StatusOK, response)
}

// LandingPage returns the root catalog.
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	baseURL := h.opts.BaseURL

	landing := stac.NewLandingPage(
		"wekeo-mosaic",
		"WEkEO mosaics",
		"Composites of WEkEO HDA tiles clipped to an area of interest",
	)

	landing.AddLink("self", baseURL+"/", stac.MediaTypeJSON)
	landing.AddLink("root", baseURL+"/", stac.MediaTypeJSON)
	for _, d := range h.datasets.All() {
		landing.AddLink("items", baseURL+"/collections/"+d.Alias+"/items", stac.MediaTypeGeoJSON)
	}
	landing.AddLink("runs", baseURL+"/runs/latest", stac.MediaTypeJSON)

	WriteJSON(w, http.StatusOK, landing)
}

// Items returns the final composites of the working directory built from
// the dataset as an ItemCollection.
// GET /collections/{dataset}/items
func (h *Handlers) Items(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	datasetID, err := h.datasets.Resolve(dataset)
	if err != nil {
		WriteNotFound(w, "collection not found")
		return
	}

	baseURL := h.opts.BaseURL
	ic, err := h.items.Items(r.Context(), dataset, datasetID, h.opts.WorkDir, func(name string) string {
		return baseURL + "/outputs/" + name
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ic = stac.NewItemCollection(nil)
		} else {
			h.logger.ErrorContext(r.Context(), "failed to list outputs",
				slog.String("workdir", h.opts.WorkDir),
				slog.String("error", err.Error()),
			)
			WriteInternalError(w, "failed to list outputs")
			return
		}
	}

	ic.AddLink("self", baseURL+"/collections/"+dataset+"/items", stac.MediaTypeGeoJSON)
	ic.AddLink("root", baseURL+"/", stac.MediaTypeJSON)

	WriteGeoJSON(w, http.StatusOK, ic)
}

// Output streams a final composite.
// GET /outputs/{name}
func (h *Handlers) Output(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		WriteInvalidParameter(w, "invalid output name")
		return
	}
	if _, ok := composite.ParseOutputName(name); !ok {
		WriteNotFound(w, "output not found")
		return
	}

	path := filepath.Join(h.opts.WorkDir, name)
	f, err := os.Open(path)
	if err != nil {
		WriteNotFound(w, "output not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		WriteNotFound(w, "output not found")
		return
	}

	w.Header().Set("Content-Type", stac.MediaTypeGeoTIFF)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// StartRun starts a pipeline run in the background.
// POST /runs
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		WriteError(w, http.StatusNotImplemented, ErrCodeServerError, "runs are disabled")
		return
	}

	var body RunRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRunBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	datasetID, err := h.datasets.Resolve(body.Dataset)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	req := pipeline.Request{
		Shape:     body.Shape,
		DatasetID: datasetID,
		Products:  body.Products,
		Start:     body.Start,
		End:       body.End,
		WorkDir:   h.opts.WorkDir,
	}
	if err := req.Validate(); err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		WriteConflict(w, "a run is already in progress")
		return
	}
	h.running = true
	h.request = &body
	h.mu.Unlock()

	h.logger.InfoContext(r.Context(), "starting run",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("dataset", datasetID),
		slog.String("shape", body.Shape),
	)

	h.runs.Add(1)
	go h.run(req)

	WriteJSON(w, http.StatusAccepted, RunStatus{Running: true, Request: &body})
}

func (h *Handlers) run(req pipeline.Request) {
	defer h.runs.Done()

	ctx := h.base
	var cancel context.CancelFunc = func() {}
	if h.opts.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.opts.RunTimeout)
	}
	defer cancel()

	rep, err := h.runner.Run(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "run aborted", slog.String("error", err.Error()))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.latest = rep
}

// LatestRun returns the state of the current or last run.
// GET /runs/latest
func (h *Handlers) LatestRun(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	status := RunStatus{Running: h.running, Request: h.request}
	latest := h.latest
	h.mu.Unlock()

	if !status.Running && latest == nil {
		WriteNotFound(w, "no run has been started")
		return
	}
	if latest != nil {
		summary := latest.Summary()
		status.Report = &summary
	}

	WriteJSON(w, http.StatusOK, status)
}
