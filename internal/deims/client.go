// Package deims fetches site boundaries from the DEIMS-SDR GeoServer.
package deims

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/wekeo-mosaic/internal/aoi"
	"github.com/robert-malhotra/wekeo-mosaic/internal/geo"
)

// DefaultBaseURL is the public DEIMS-SDR site registry.
const DefaultBaseURL = "https://deims.org"

// ErrNotFound is returned when no boundary is registered for a site.
var ErrNotFound = errors.New("site boundary not found")

// Client handles communication with the DEIMS WFS endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new DEIMS client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Boundary implements aoi.BoundarySource. The id is the site UUID.
func (c *Client) Boundary(ctx context.Context, id string) (aoi.Shape, error) {
	reqURL := c.boundaryURL(id)

	c.logger.DebugContext(ctx, "fetching DEIMS boundary",
		slog.String("site", id),
		slog.String("url", reqURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return aoi.Shape{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return aoi.Shape{}, fmt.Errorf("DEIMS request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return aoi.Shape{}, fmt.Errorf("failed to read DEIMS response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return aoi.Shape{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		return aoi.Shape{}, fmt.Errorf("DEIMS returned status %d: %s", resp.StatusCode, string(body))
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return aoi.Shape{}, fmt.Errorf("failed to decode DEIMS boundary: %w", err)
	}
	if len(fc.Features) == 0 {
		return aoi.Shape{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	geoms := make([]orb.Geometry, 0, len(fc.Features))
	for _, f := range fc.Features {
		geoms = append(geoms, f.Geometry)
	}
	mp, err := geo.Union(geoms...)
	if err != nil {
		return aoi.Shape{}, fmt.Errorf("%w: %s has no polygon boundary", ErrNotFound, id)
	}

	c.logger.DebugContext(ctx, "DEIMS boundary fetched",
		slog.String("site", id),
		slog.Int("features", len(fc.Features)),
	)

	// The WFS request asks for WGS84 output.
	return aoi.Shape{Geometry: mp, CRS: geo.WGS84}, nil
}

func (c *Client) boundaryURL(id string) string {
	q := url.Values{}
	q.Set("service", "WFS")
	q.Set("version", "2.0.0")
	q.Set("request", "GetFeature")
	q.Set("typeName", "deims:deims_sites_boundaries")
	q.Set("srsName", geo.WGS84)
	q.Set("outputFormat", "application/json")
	q.Set("CQL_FILTER", fmt.Sprintf("deimsid='https://deims.org/%s'", id))
	return c.baseURL + "/geoserver/deims/ows?" + q.Encode()
}
