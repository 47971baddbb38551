package history

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Sumatoshi-tech/didiforget/pkg/changeset"
)

// DefaultExistenceCacheSize bounds the memo of on-disk existence checks.
// Paths recur across many commits, so most lookups are served from it.
const DefaultExistenceCacheSize = 64 * 1024

// PathFilter decides which log paths take part in the analysis: members
// of the changed set, including ones deleted in the working tree, and any
// path that currently exists on disk.
type PathFilter struct {
	changed *changeset.Set
	exists  *lru.Cache[string, bool]
	logger  *slog.Logger
	root    string
	checks  int
}

// NewPathFilter creates a filter resolving paths against root. cacheSize
// <= 0 uses DefaultExistenceCacheSize.
func NewPathFilter(root string, changed *changeset.Set, cacheSize int, logger *slog.Logger) (*PathFilter, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultExistenceCacheSize
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	exists, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("existence cache: %w", err)
	}

	return &PathFilter{
		root:    root,
		changed: changed,
		exists:  exists,
		logger:  logger,
	}, nil
}

// Keep reports whether path should be retained.
func (f *PathFilter) Keep(path string) bool {
	if path == "" || f.changed.Contains(path) {
		return true
	}

	if ok, hit := f.exists.Get(path); hit {
		return ok
	}

	f.checks++

	_, err := os.Lstat(filepath.Join(f.root, filepath.FromSlash(path)))
	ok := err == nil

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.logger.Debug("path existence check failed", "path", path, "error", err)
	}

	f.exists.Add(path, ok)

	return ok
}

// DiskChecks returns how many existence checks reached the filesystem.
func (f *PathFilter) DiskChecks() int {
	return f.checks
}
