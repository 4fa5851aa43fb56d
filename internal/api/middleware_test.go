package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// logRecord is the subset of a JSON log line the middleware tests inspect.
type logRecord struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Duration  *int64 `json:"duration"`
}

func decodeLogs(t *testing.T, buf *bytes.Buffer) []logRecord {
	t.Helper()
	var records []logRecord
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec logRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("failed to decode log line %q: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func findLog(records []logRecord, msg string) (logRecord, bool) {
	for _, rec := range records {
		if rec.Msg == msg {
			return rec, true
		}
	}
	return logRecord{}, false
}

// middlewareRouter mounts run and output routes behind the same middleware
// order the API router uses.
func middlewareRouter(logs *bytes.Buffer) http.Handler {
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))

	r.Post("/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "busy":
			WriteConflict(w, "a run is already in progress")
		case "invalid":
			WriteBadRequest(w, "shape is required")
		case "silent":
			// no explicit WriteHeader
		default:
			WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		}
	})
	r.Get("/outputs/{name}", func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "name") {
		case "missing_rec.tif":
			WriteNotFound(w, "output not found")
		case "broken_rec.tif":
			WriteInternalError(w, "failed to open output")
		case "panic_error.tif":
			panic(errors.New("raster driver crashed"))
		case "panic_value.tif":
			panic(7)
		default:
			w.Header().Set("Content-Type", "image/tiff")
			w.Write([]byte("II*"))
		}
	})
	return r
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantLevel  string
	}{
		{name: "run accepted", method: "POST", target: "/runs", wantStatus: http.StatusAccepted, wantLevel: "INFO"},
		{name: "run without status", method: "POST", target: "/runs?mode=silent", wantStatus: http.StatusOK, wantLevel: "INFO"},
		{name: "run rejected", method: "POST", target: "/runs?mode=invalid", wantStatus: http.StatusBadRequest, wantLevel: "WARN"},
		{name: "run in progress", method: "POST", target: "/runs?mode=busy", wantStatus: http.StatusConflict, wantLevel: "WARN"},
		{name: "output served", method: "GET", target: "/outputs/mosaic_20230615_NDVI_rec.tif", wantStatus: http.StatusOK, wantLevel: "INFO"},
		{name: "output missing", method: "GET", target: "/outputs/missing_rec.tif", wantStatus: http.StatusNotFound, wantLevel: "WARN"},
		{name: "output unreadable", method: "GET", target: "/outputs/broken_rec.tif", wantStatus: http.StatusInternalServerError, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			w := httptest.NewRecorder()
			middlewareRouter(&logs).ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			rec, ok := findLog(decodeLogs(t, &logs), "http request")
			if !ok {
				t.Fatal("Expected an http request log line")
			}
			if rec.Level != tt.wantLevel {
				t.Errorf("Expected level %s, got %s", tt.wantLevel, rec.Level)
			}
			if rec.Status != tt.wantStatus {
				t.Errorf("Expected logged status %d, got %d", tt.wantStatus, rec.Status)
			}
			if rec.Method != tt.method {
				t.Errorf("Expected logged method %s, got %s", tt.method, rec.Method)
			}
			if rec.RequestID == "" {
				t.Error("Expected request id in log line")
			}
			if rec.Duration == nil {
				t.Error("Expected duration in log line")
			}
		})
	}
}

func TestRecovery_OutputHandlerPanics(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		wantError string
	}{
		{name: "error value", file: "panic_error.tif", wantError: "raster driver crashed"},
		{name: "other value", file: "panic_value.tif", wantError: "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			req := httptest.NewRequest("GET", "/outputs/"+tt.file, nil)
			req.Header.Set("X-Request-Id", "run-42")
			w := httptest.NewRecorder()

			middlewareRouter(&logs).ServeHTTP(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("Expected status 500, got %d", w.Code)
			}

			var body APIError
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Code != ErrCodeServerError {
				t.Errorf("Expected code %s, got %s", ErrCodeServerError, body.Code)
			}
			if body.RequestID != "run-42" {
				t.Errorf("Expected request id run-42 in body, got %q", body.RequestID)
			}

			records := decodeLogs(t, &logs)
			panicLog, ok := findLog(records, "panic recovered")
			if !ok {
				t.Fatal("Expected a panic recovered log line")
			}
			if panicLog.Error != tt.wantError {
				t.Errorf("Expected logged error %q, got %q", tt.wantError, panicLog.Error)
			}
			if panicLog.Path != "/outputs/"+tt.file {
				t.Errorf("Expected logged path /outputs/%s, got %s", tt.file, panicLog.Path)
			}

			access, ok := findLog(records, "http request")
			if !ok || access.Level != "ERROR" {
				t.Errorf("Expected the recovered request to be logged at ERROR, got %+v", access)
			}
		})
	}
}

func TestRequestIDResponse_EchoesHeader(t *testing.T) {
	var logs bytes.Buffer
	router := middlewareRouter(&logs)

	req := httptest.NewRequest("POST", "/runs", nil)
	req.Header.Set("X-Request-Id", "client-run-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "client-run-1" {
		t.Errorf("Expected %s client-run-1, got %q", RequestIDHeader, got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/outputs/mosaic_20230615_NDVI_rec.tif", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Errorf("Expected a generated %s header", RequestIDHeader)
	}
}

func TestGetRequestID(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("Expected no request id outside a request, got %q", id)
	}

	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/runs/current", nil))

	if seen == "" {
		t.Error("Expected a request id inside the request")
	}
}
