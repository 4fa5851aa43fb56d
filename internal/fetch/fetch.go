// Package fetch downloads the tiles of every requested product into the
// working directory, one product at a time.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/wekeo-mosaic/internal/report"
	"github.com/robert-malhotra/wekeo-mosaic/internal/wekeo"
)

// ResultSet is a set of matched catalog items.
type ResultSet interface {
	Len() int
	Download(ctx context.Context, dir string) ([]string, error)
}

// Catalog is the remote data catalog.
type Catalog interface {
	Authenticate(ctx context.Context) error
	Search(ctx context.Context, req wekeo.DownloadRequest) (ResultSet, error)
}

type hdaCatalog struct {
	client *wekeo.Client
}

// NewHDACatalog adapts an HDA client to the Catalog interface.
func NewHDACatalog(client *wekeo.Client) Catalog {
	return &hdaCatalog{client: client}
}

func (c *hdaCatalog) Authenticate(ctx context.Context) error {
	return c.client.Authenticate(ctx)
}

func (c *hdaCatalog) Search(ctx context.Context, req wekeo.DownloadRequest) (ResultSet, error) {
	rs, err := c.client.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Fetcher runs the download requests of a run.
type Fetcher struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(catalog Catalog) *Fetcher {
	return &Fetcher{catalog: catalog, logger: slog.Default()}
}

// WithLogger sets a custom logger
func (f *Fetcher) WithLogger(logger *slog.Logger) *Fetcher {
	f.logger = logger
	return f
}

// Fetch authenticates once, then searches and downloads each request in
// order into dir. A failing product is logged and reported as skipped and
// the remaining products are still fetched. Only an authentication failure
// before the first request or a cancelled context stops the loop.
func (f *Fetcher) Fetch(ctx context.Context, reqs []wekeo.DownloadRequest, dir string) ([]report.Result, error) {
	if err := f.catalog.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("catalog authentication: %w", err)
	}

	results := make([]report.Result, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := f.fetchOne(ctx, req, dir)
		if err != nil && errors.Is(err, context.Canceled) {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, req wekeo.DownloadRequest, dir string) (report.Result, error) {
	label := req.Label()

	f.logger.InfoContext(ctx, "searching catalog",
		slog.String("dataset", req.DatasetID),
		slog.String("product", label),
		slog.String("start", req.StartDate),
		slog.String("end", req.EndDate),
	)

	rs, err := f.catalog.Search(ctx, req)
	if err != nil {
		f.skip(ctx, label, "search", err)
		return report.Skipped(report.StageFetch, label, err), err
	}

	files, err := rs.Download(ctx, dir)
	if err != nil && len(files) > 0 {
		f.logger.WarnContext(ctx, "product partially downloaded",
			slog.String("product", label),
			slog.Int("files", len(files)),
			slog.String("reason", err.Error()),
		)
		return report.Partial(report.StageFetch, label, fmt.Sprintf("%d files", len(files)), err), err
	}
	if err != nil {
		f.skip(ctx, label, "download", err)
		return report.Skipped(report.StageFetch, label, err), err
	}

	f.logger.InfoContext(ctx, "product downloaded",
		slog.String("product", label),
		slog.Int("items", rs.Len()),
		slog.Int("files", len(files)),
	)
	return report.OK(report.StageFetch, label, fmt.Sprintf("%d files", len(files))), nil
}

func (f *Fetcher) skip(ctx context.Context, product, step string, err error) {
	f.logger.WarnContext(ctx, "skipping product",
		slog.String("product", product),
		slog.String("step", step),
		slog.String("reason", err.Error()),
	)
}
