// Package workdir manages the pipeline working directory.
package workdir

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FinalSuffix marks the files that survive cleanup.
const FinalSuffix = "_rec.tif"

// Cleaner removes intermediate artifacts from a working directory.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner creates a cleaner.
func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{logger: logger}
}

// Clean removes every directory and every file not ending in FinalSuffix
// from the top level of dir, and returns the removed names. Running it
// again on a clean directory removes nothing.
func (c *Cleaner) Clean(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if !e.IsDir() && IsFinal(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed = append(removed, e.Name())
	}

	c.logger.InfoContext(ctx, "cleaned working directory",
		slog.String("dir", dir),
		slog.Int("removed", len(removed)),
	)
	return removed, nil
}

// Outputs lists the final outputs at the top level of dir, sorted.
func Outputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsFinal(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// IsFinal reports whether name is a final output.
func IsFinal(name string) bool {
	return strings.HasSuffix(name, FinalSuffix)
}

// Ensure creates dir if it does not exist.
func Ensure(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
