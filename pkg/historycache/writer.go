package historycache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

const writeBufferSize = 64 * 1024

// writer streams lines into a gzip temp file. After the first failure it
// releases the temp file and ignores further lines.
type writer struct {
	err      error
	file     *os.File
	buf      *bufio.Writer
	gz       *gzip.Writer
	cache    *Cache
	ctx      context.Context //nolint:containedctx // only carries logging context for contained errors.
	tempPath string
}

func (c *Cache) createWriter(ctx context.Context, fingerprint string) *writer {
	w := &writer{cache: c, ctx: ctx}

	dir := c.tempDir
	if dir == "" {
		dir = os.TempDir()
	}

	w.tempPath = filepath.Join(dir, tempPrefix+uuid.NewString())

	f, err := os.OpenFile(w.tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		w.tempPath = ""
		w.failWith(fmt.Errorf("%w: create temp file: %w", ErrCacheWrite, err))

		return w
	}

	w.file = f
	w.buf = bufio.NewWriterSize(f, writeBufferSize)

	gz, err := gzip.NewWriterLevel(w.buf, c.level)
	if err != nil {
		w.failWith(fmt.Errorf("%w: gzip writer: %w", ErrCacheWrite, err))

		return w
	}

	w.gz = gz

	w.writeLine(fingerprint)

	return w
}

// writeLine appends line and a newline.
func (w *writer) writeLine(line string) {
	if w.err != nil {
		return
	}

	_, err := io.WriteString(w.gz, line)
	if err == nil {
		_, err = w.gz.Write([]byte{'\n'})
	}

	if err != nil {
		w.failWith(fmt.Errorf("%w: %w", ErrCacheWrite, err))
	}
}

func (w *writer) failed() bool {
	return w.err != nil
}

func (w *writer) failWith(err error) {
	w.err = err
	w.cache.fail(w.ctx, err)
	w.abort()
}

// abort closes and removes the temp file. Safe to call more than once.
func (w *writer) abort() {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	if w.tempPath != "" {
		_ = os.Remove(w.tempPath)
		w.tempPath = ""
	}
}

// commit finishes the gzip stream and moves the temp file over dst.
// A writer that already failed reports nothing new.
func (w *writer) commit(dst string) error {
	if w.failed() {
		return nil
	}

	err := w.gz.Close()
	if err == nil {
		err = w.buf.Flush()
	}

	if err == nil {
		err = w.file.Sync()
	}

	if err == nil {
		err = w.file.Close()
		w.file = nil
	}

	if err != nil {
		w.abort()

		return fmt.Errorf("%w: finish temp file: %w", ErrCacheWrite, err)
	}

	err = moveFile(w.tempPath, dst)
	if err != nil {
		w.abort()

		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}

	w.tempPath = ""

	return nil
}

// moveFile renames src over dst. When they live on different devices the
// content is first copied to a sibling of dst so the final step is still
// an atomic rename.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("rename temp file: %w", err)
	}

	sibling := filepath.Join(filepath.Dir(dst), "."+tempPrefix+uuid.NewString())

	copyErr := copyFile(src, sibling)
	if copyErr != nil {
		_ = os.Remove(sibling)

		return fmt.Errorf("copy temp file: %w", copyErr)
	}

	renameErr := os.Rename(sibling, dst)
	if renameErr != nil {
		_ = os.Remove(sibling)

		return fmt.Errorf("rename copied temp file: %w", renameErr)
	}

	_ = os.Remove(src)

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}

	closeErr := out.Close()

	return errors.Join(err, closeErr)
}
