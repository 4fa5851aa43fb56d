package tile

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FilterResult lists the tiles kept and removed by a filter pass.
type FilterResult struct {
	Kept    []string
	Removed []string
}

// Filter deletes raster tiles that fall outside the AOI's UTM zones.
type Filter struct {
	logger *slog.Logger
}

// NewFilter creates a zone filter.
func NewFilter(logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{logger: logger}
}

// Apply walks dir recursively and removes every raster tile whose zone is
// not one of zones. Tiles whose name carries no MGRS token are kept when
// the name contains any of the zone labels. Compositor outputs are ignored.
func (f *Filter) Apply(ctx context.Context, dir string, zones []string) (FilterResult, error) {
	var res FilterResult

	allowed := make(map[string]bool, len(zones))
	for _, z := range zones {
		allowed[z] = true
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsRaster(d.Name()) || IsOutput(d.Name()) {
			return nil
		}

		if inZones(d.Name(), allowed, zones) {
			res.Kept = append(res.Kept, path)
			return nil
		}

		if err := os.Remove(path); err != nil {
			return err
		}
		f.logger.DebugContext(ctx, "removed tile outside area of interest",
			slog.String("path", path),
		)
		res.Removed = append(res.Removed, path)
		return nil
	})
	if err != nil {
		return res, err
	}

	f.logger.InfoContext(ctx, "filtered tiles by UTM zone",
		slog.Int("kept", len(res.Kept)),
		slog.Int("removed", len(res.Removed)),
		slog.String("zones", strings.Join(zones, ",")),
	)
	return res, nil
}

func inZones(name string, allowed map[string]bool, zones []string) bool {
	if id, err := ParseID(name); err == nil && id.Zone != "" {
		return allowed[id.Zone]
	}
	for _, z := range zones {
		if strings.Contains(name, z) {
			return true
		}
	}
	return false
}
