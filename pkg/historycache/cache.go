// Package historycache persists the raw name-only git log in a gzip file
// whose first line is a repository fingerprint, and replays it while the
// fingerprint still matches.
package historycache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/Sumatoshi-tech/didiforget/pkg/linestream"
)

// DefaultFile is the cache path used when none is configured.
const DefaultFile = ".did-i-forget-cache"

// tempPrefix names temporary cache files in the temp directory.
const tempPrefix = "did-i-forget-cache-"

// Sentinel errors. Both are contained by callers: a read error degrades to
// a miss, a write error leaves the previous cache in place.
var (
	ErrCacheRead  = errors.New("history cache read failed")
	ErrCacheWrite = errors.New("history cache write failed")
	ErrNoCache    = errors.New("history cache does not exist")
)

// Outcome tells whether a sequence is replayed from disk or regenerated.
type Outcome int

const (
	// Miss means the source runs and its output is written to the cache.
	Miss Outcome = iota
	// Hit means the cached lines are replayed and the source never runs.
	Hit
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	if o == Hit {
		return "hit"
	}

	return "miss"
}

// Source produces the raw log lines on a miss.
type Source func(ctx context.Context) iter.Seq2[string, error]

// Cache is a single cache file.
type Cache struct {
	logger   *slog.Logger
	writeErr error
	path     string
	tempDir  string
	level    int
}

// Option configures a Cache.
type Option func(*Cache)

// WithTempDir sets where temporary files are written before the rename.
// Empty means os.TempDir().
func WithTempDir(dir string) Option {
	return func(c *Cache) {
		c.tempDir = dir
	}
}

// WithLogger sets the logger for contained cache errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCompressionLevel sets the gzip level.
func WithCompressionLevel(level int) Option {
	return func(c *Cache) {
		c.level = level
	}
}

// New returns a Cache stored at path.
func New(path string, opts ...Option) *Cache {
	if path == "" {
		path = DefaultFile
	}

	c := &Cache{
		path:   path,
		level:  gzip.DefaultCompression,
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// WriteErr returns the error that prevented the last miss from being
// stored, or nil.
func (c *Cache) WriteErr() error {
	return c.writeErr
}

// Lines returns the raw log lines for fingerprint. When the stored
// fingerprint matches, it replays the file. Otherwise it returns source's
// lines unchanged while writing them to a fresh cache file.
func (c *Cache) Lines(ctx context.Context, fingerprint string, source Source) (iter.Seq2[string, error], Outcome) {
	stored, err := c.fingerprint()

	switch {
	case err == nil && stored == fingerprint:
		c.logger.DebugContext(ctx, "history cache hit", "path", c.path, "fingerprint", fingerprint)

		return c.replay(fingerprint), Hit
	case err == nil:
		c.logger.InfoContext(ctx, "history cache is stale",
			"path", c.path, "stored", stored, "current", fingerprint)
	case errors.Is(err, ErrNoCache):
		c.logger.DebugContext(ctx, "history cache absent", "path", c.path)
	default:
		c.logger.WarnContext(ctx, "history cache unreadable, regenerating", "path", c.path, "error", err)
	}

	return c.tee(ctx, fingerprint, source), Miss
}

// Info describes an existing cache file.
type Info struct {
	ModTime     time.Time
	Path        string
	Fingerprint string
	Size        int64
}

// Stat reads the stored fingerprint and file metadata.
func (c *Cache) Stat() (Info, error) {
	st, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, ErrNoCache
		}

		return Info{}, fmt.Errorf("%w: %w", ErrCacheRead, err)
	}

	fp, err := c.fingerprint()
	if err != nil {
		return Info{}, err
	}

	return Info{Path: c.path, Fingerprint: fp, Size: st.Size(), ModTime: st.ModTime()}, nil
}

// Remove deletes the cache file. A missing file is not an error.
func (c *Cache) Remove() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove history cache: %w", err)
	}

	return nil
}

// fingerprint reads the first line of the cache file.
func (c *Cache) fingerprint() (string, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCache
		}

		return "", fmt.Errorf("%w: %w", ErrCacheRead, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCacheRead, err)
	}
	defer zr.Close()

	for line, readErr := range linestream.Lines(zr) {
		if readErr != nil {
			return "", fmt.Errorf("%w: %w", ErrCacheRead, readErr)
		}

		return line, nil
	}

	return "", fmt.Errorf("%w: empty cache file", ErrCacheRead)
}

// replay yields every line after the fingerprint. Any decode failure,
// including a gzip checksum mismatch at the end, is an ErrCacheRead.
func (c *Cache) replay(fingerprint string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := os.Open(c.path)
		if err != nil {
			yield("", fmt.Errorf("%w: %w", ErrCacheRead, err))

			return
		}
		defer f.Close()

		zr, err := gzip.NewReader(f)
		if err != nil {
			yield("", fmt.Errorf("%w: %w", ErrCacheRead, err))

			return
		}
		defer zr.Close()

		first := true

		for line, readErr := range linestream.Lines(zr) {
			if readErr != nil {
				yield("", fmt.Errorf("%w: %w", ErrCacheRead, readErr))

				return
			}

			if first {
				first = false

				if line != fingerprint {
					yield("", fmt.Errorf("%w: fingerprint changed during replay", ErrCacheRead))

					return
				}

				continue
			}

			if !yield(line, nil) {
				return
			}
		}
	}
}

// tee yields the source lines and writes them to a temporary cache file,
// renamed over the cache path once the source completes.
func (c *Cache) tee(ctx context.Context, fingerprint string, source Source) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c.writeErr = nil

		w := c.createWriter(ctx, fingerprint)
		committed := false

		defer func() {
			if !committed {
				w.abort()
			}
		}()

		for line, err := range source(ctx) {
			if err != nil {
				yield("", err)

				return
			}

			w.writeLine(line)

			if !yield(line, nil) {
				return
			}
		}

		committed = true

		if w.failed() {
			return
		}

		err := w.commit(c.path)
		if err != nil {
			c.fail(ctx, err)

			return
		}

		c.logger.DebugContext(ctx, "history cache written", "path", c.path, "fingerprint", fingerprint)
	}
}

// fail records a contained write error.
func (c *Cache) fail(ctx context.Context, err error) {
	c.writeErr = err
	c.logger.WarnContext(ctx, "history cache not written", "path", c.path, "error", err)
}
