package tile

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
)

// Key identifies a group of tiles composited together.
type Key struct {
	Date    string
	Product string
}

func (k Key) String() string {
	return k.Date + "/" + k.Product
}

// Tile is a raster file and its parsed name.
type Tile struct {
	Path string
	ID   ID
}

// Skip records a file the indexer could not use.
type Skip struct {
	Name string // relative to the working directory
	Err  error
}

// Index maps group keys to their tiles. Tile order within a group follows
// the lexical walk order; the first tile is the group's template.
type Index struct {
	Groups  map[Key][]Tile
	Skipped []Skip
}

// Keys returns the group keys in sorted order.
func (ix *Index) Keys() []Key {
	keys := make([]Key, 0, len(ix.Groups))
	for k := range ix.Groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Product < keys[j].Product
	})
	return keys
}

// Len returns the number of indexed tiles.
func (ix *Index) Len() int {
	n := 0
	for _, tiles := range ix.Groups {
		n += len(tiles)
	}
	return n
}

// Indexer groups the rasters of a working directory, including those
// unpacked into subdirectories.
type Indexer struct {
	logger *slog.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{logger: logger}
}

// Build walks dir, the same tree the filter walks, and groups every raster
// tile by (date, product) in a single pass. Files with malformed names are
// skipped and reported.
func (ix *Indexer) Build(ctx context.Context, dir string) (*Index, error) {
	index := &Index{Groups: make(map[Key][]Tile)}

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

		id, err := ParseID(d.Name())
		if err != nil {
			rel, _ := filepath.Rel(dir, path)
			ix.logger.WarnContext(ctx, "skipping tile",
				slog.String("file", rel),
				slog.String("error", err.Error()),
			)
			index.Skipped = append(index.Skipped, Skip{Name: rel, Err: err})
			return nil
		}

		key := id.Key()
		index.Groups[key] = append(index.Groups[key], Tile{Path: path, ID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}

	ix.logger.InfoContext(ctx, "indexed tiles",
		slog.Int("tiles", index.Len()),
		slog.Int("groups", len(index.Groups)),
		slog.Int("skipped", len(index.Skipped)),
	)
	return index, nil
}
