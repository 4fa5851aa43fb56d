package wekeo

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
)

// ResultSet is the outcome of a search: the matched features of one dataset.
type ResultSet struct {
	client    *Client
	datasetID string
	Features  []Feature
}

// Len returns the number of matched features.
func (rs *ResultSet) Len() int {
	return len(rs.Features)
}

// Download fetches every matched feature into dir and returns the paths of
// the files written. Zip archives are unpacked into a subdirectory named
// after the archive and then removed. All features are attempted; the
// returned error joins the individual failures.
func (rs *ResultSet) Download(ctx context.Context, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	var (
		paths []string
		errs  []error
	)
	for _, f := range rs.Features {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		files, err := rs.client.downloadFeature(ctx, rs.datasetID, f, dir)
		if err != nil {
			rs.client.logger.WarnContext(ctx, "download failed",
				slog.String("item_id", f.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", f.ID, err))
			continue
		}
		paths = append(paths, files...)
	}
	return paths, errors.Join(errs...)
}

func (c *Client) downloadFeature(ctx context.Context, datasetID string, f Feature, dir string) ([]string, error) {
	var dr downloadResponse
	if err := c.postJSON(ctx, "/dataaccess/download", downloadRequest{DatasetID: datasetID, ItemID: f.ID}, &dr); err != nil {
		return nil, err
	}

	target := dr.URL
	if target == "" {
		if dr.DownloadID == "" {
			return nil, fmt.Errorf("%w: download response carries neither url nor download_id", ErrTransient)
		}
		target = c.baseURL + "/dataaccess/download/" + url.PathEscape(dr.DownloadID)
	}

	hc, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return nil, fmt.Errorf("%w: %s is not ready for download", ErrTransient, f.ID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: download of %s returned status %d", classify(resp.StatusCode), f.ID, resp.StatusCode)
	}

	name := fileName(resp.Header.Get("Content-Disposition"), f)
	dst := filepath.Join(dir, name)

	size := resp.ContentLength
	if size <= 0 {
		size = f.Properties.Size
	}
	if err := c.save(resp.Body, dst, size, name); err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "downloaded asset",
		slog.String("item_id", f.ID),
		slog.String("path", dst),
	)

	if !strings.EqualFold(filepath.Ext(dst), ".zip") {
		return []string{dst}, nil
	}

	files, err := unzip(dst, strings.TrimSuffix(dst, filepath.Ext(dst)))
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", name, err)
	}
	if err := os.Remove(dst); err != nil {
		return nil, err
	}
	return files, nil
}

// save streams r into dst through a temporary file, with a progress bar.
func (c *Client) save(r io.Reader, dst string, size int64, desc string) error {
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if size <= 0 {
		size = -1
	}
	var bar *progressbar.ProgressBar
	if c.progress {
		bar = progressbar.DefaultBytes(size, desc)
	} else {
		bar = progressbar.DefaultBytesSilent(size, desc)
	}

	_, err = io.Copy(io.MultiWriter(out, bar), r)
	_ = bar.Finish()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: writing %s: %v", ErrTransient, filepath.Base(dst), err)
	}
	return os.Rename(tmp, dst)
}

// fileName picks the local name of a downloaded asset: the server-provided
// attachment name, then the catalog location, then the item id.
func fileName(disposition string, f Feature) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if n := filepath.Base(params["filename"]); n != "." && n != "/" && n != "" {
				return n
			}
		}
	}
	if f.Properties.Location != "" {
		loc := f.Properties.Location
		if u, err := url.Parse(loc); err == nil && u.Path != "" {
			loc = u.Path
		}
		if n := path.Base(loc); n != "." && n != "/" {
			return n
		}
	}
	return filepath.Base(f.ID)
}

// unzip extracts archive into dest and returns the extracted file paths.
func unzip(archive, dest string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, zf := range zr.File {
		target := filepath.Join(root, zf.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes destination", zf.Name)
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}

		if err := extract(zf, target); err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}

func extract(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
