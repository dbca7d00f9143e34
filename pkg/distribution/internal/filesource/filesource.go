// Package filesource adapts an on-disk weight file to the importer's
// opaque Source/StreamSource interfaces, so the CLI's convert command can
// hand the importer a plain *os.File without the importer package knowing
// anything about the filesystem.
package filesource

import (
	"context"
	"fmt"
	"io"
	"os"
)

// File is a Source (and StreamSource) backed by a single on-disk file.
type File struct {
	path string
	size int64
}

// Open stats path and returns a File source for it.
func Open(path string) (*File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &File{path: path, size: fi.Size()}, nil
}

// Name returns the file's path, which the importer uses to derive both
// the model ID (by base name) and the container format (by extension).
func (f *File) Name() string { return f.path }

// Size returns the file's total byte length.
func (f *File) Size() int64 { return f.size }

// Slice reads the bounded byte range [start, end) into memory, used for
// header parsing and as the non-streaming sharding fallback.
func (f *File) Slice(start, end int64) ([]byte, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	defer fh.Close()

	buf := make([]byte, end-start)
	if _, err := fh.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s [%d,%d): %w", f.path, start, end, err)
	}
	return buf, nil
}

// Stream opens a lazy reader over the file starting at start, the
// preferred path for the importer's streaming shard algorithm.
func (f *File) Stream(ctx context.Context, start int64) (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	if _, err := fh.Seek(start, io.SeekStart); err != nil {
		fh.Close()
		return nil, fmt.Errorf("seek %s to %d: %w", f.path, start, err)
	}
	return &ctxReadCloser{ctx: ctx, rc: fh}, nil
}

// ctxReadCloser aborts reads once ctx is cancelled, the concrete
// suspension-point check for a long-running local file stream.
type ctxReadCloser struct {
	ctx context.Context
	rc  io.ReadCloser
}

func (c *ctxReadCloser) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.rc.Read(p)
}

func (c *ctxReadCloser) Close() error {
	return c.rc.Close()
}
