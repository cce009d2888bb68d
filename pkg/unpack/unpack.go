// Package unpack expands compressed inputs to plain files so the chunk
// planner can read them at random offsets.
package unpack

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is a compression format recognized by file extension.
type Format int

const (
	FormatNone Format = iota
	FormatZstd
	FormatGzip
)

func (f Format) String() string {
	switch f {
	case FormatZstd:
		return "zstd"
	case FormatGzip:
		return "gzip"
	default:
		return "none"
	}
}

// Detect returns the format implied by the name's extension. Works on paths
// and s3:// URIs alike.
func Detect(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return FormatZstd
	case strings.HasSuffix(lower, ".gz"):
		return FormatGzip
	default:
		return FormatNone
	}
}

// ToFile decompresses src into dst, which is created or truncated, and
// returns the number of plain bytes written.
func ToFile(ctx context.Context, src, dst string, format Format) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open compressed input: %w", err)
	}
	defer in.Close()

	r, closeReader, err := newReader(in, format)
	if err != nil {
		return 0, fmt.Errorf("open %s stream %s: %w", format, src, err)
	}
	defer closeReader()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := io.Copy(out, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		out.Close()
		return n, fmt.Errorf("decompress %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", dst, err)
	}
	return n, nil
}

func newReader(r io.Reader, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case FormatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	default:
		return r, func() {}, nil
	}
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
