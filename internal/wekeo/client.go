// Package wekeo is a client for the WEkEO Harmonised Data Access (HDA) broker:
// token exchange, paginated search and asset download.
package wekeo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production HDA broker API.
const DefaultBaseURL = "https://gateway.prod.wekeo2.eu/hda-broker/api/v1"

// Credentials identify a WEkEO account.
type Credentials struct {
	User     string
	Password string
}

// Client handles communication with the HDA broker
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	pageSize   int
	progress   bool
	logger     *slog.Logger

	mu     sync.Mutex
	authed *http.Client
}

// NewClient creates a new HDA client
func NewClient(baseURL string, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pageSize: DefaultItemsPerPage,
		progress: true,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithPageSize overrides the number of items requested per search page.
func (c *Client) WithPageSize(n int) *Client {
	if n > 0 {
		c.pageSize = n
	}
	return c
}

// WithProgress enables or disables the download progress bar.
func (c *Client) WithProgress(enabled bool) *Client {
	c.progress = enabled
	return c
}

// Authenticate exchanges the credentials for a bearer token. Subsequent
// requests reuse the token until it expires.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.creds.User == "" || c.creds.Password == "" {
		return fmt.Errorf("%w: missing user or password", ErrAuth)
	}

	src := &tokenSource{
		ctx:        context.WithoutCancel(ctx),
		tokenURL:   c.baseURL + "/gettoken",
		username:   c.creds.User,
		password:   c.creds.Password,
		httpClient: c.httpClient,
	}

	tok, err := src.Token()
	if err != nil {
		c.logger.ErrorContext(ctx, "HDA authentication failed",
			slog.String("user", c.creds.User),
			slog.String("error", err.Error()),
		)
		return err
	}

	c.mu.Lock()
	c.authed = oauth2.NewClient(
		context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient),
		oauth2.ReuseTokenSource(tok, src),
	)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "authenticated with HDA", slog.String("user", c.creds.User))
	return nil
}

func (c *Client) client(ctx context.Context) (*http.Client, error) {
	c.mu.Lock()
	hc := c.authed
	c.mu.Unlock()
	if hc != nil {
		return hc, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed, nil
}

// Search collects every feature matching req, following startIndex until
// totalResults items have been read. An empty result is ErrNotFound.
func (c *Client) Search(ctx context.Context, req DownloadRequest) (*ResultSet, error) {
	if req.ItemsPerPage <= 0 {
		req.ItemsPerPage = c.pageSize
	}

	var features []Feature
	for {
		page, err := c.searchPage(ctx, req)
		if err != nil {
			return nil, err
		}
		features = append(features, page.Features...)

		total := page.Properties.TotalResults
		if len(page.Features) == 0 || total <= 0 || len(features) >= total {
			break
		}
		req.StartIndex += len(page.Features)
	}

	c.logger.InfoContext(ctx, "HDA search completed",
		slog.String("dataset", req.DatasetID),
		slog.String("product", req.ProductType),
		slog.Int("results", len(features)),
	)

	if len(features) == 0 {
		return nil, fmt.Errorf("%w: %s %s %s/%s", ErrNotFound, req.DatasetID, req.ProductType, req.StartDate, req.EndDate)
	}
	return &ResultSet{client: c, datasetID: req.DatasetID, Features: features}, nil
}

func (c *Client) searchPage(ctx context.Context, req DownloadRequest) (*SearchResponse, error) {
	c.logger.DebugContext(ctx, "executing HDA search",
		slog.String("dataset", req.DatasetID),
		slog.String("product", req.ProductType),
		slog.Int("start_index", req.StartIndex),
	)

	var page SearchResponse
	if err := c.postJSON(ctx, "/dataaccess/search", req, &page); err != nil {
		return nil, fmt.Errorf("search %s: %w", req.Label(), err)
	}
	return &page, nil
}

// postJSON sends body as JSON with the bearer token and decodes the reply into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	hc, err := c.client(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "HDA returned non-200 status",
			slog.String("path", path),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(msg)),
		)
		return fmt.Errorf("%w: %s returned status %d", classify(resp.StatusCode), path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// transportError keeps authentication and cancellation errors intact and
// marks everything else as transient.
func transportError(err error) error {
	switch {
	case errors.Is(err, ErrAuth), errors.Is(err, ErrTransient), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}
