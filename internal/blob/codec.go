package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a compression format recognised by extension.
type Codec string

// Supported codecs.
const (
	CodecNone   Codec = ""
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecLZ4    Codec = "lz4"
	CodecBrotli Codec = "brotli"
)

// CodecFor returns the codec implied by name's extension.
func CodecFor(name string) Codec {
	switch strings.ToLower(path.Ext(name)) {
	case ".gz", ".gzip":
		return CodecGzip
	case ".zst", ".zstd":
		return CodecZstd
	case ".lz4":
		return CodecLZ4
	case ".br":
		return CodecBrotli
	default:
		return CodecNone
	}
}

// Decode wraps r with the decompressor implied by name. Closing the result
// closes r.
func Decode(name string, r io.ReadCloser) (io.ReadCloser, error) {
	switch CodecFor(name) {
	case CodecGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("gzip %s: %w", name, err)
		}
		return &decoded{Reader: zr, closers: []func() error{zr.Close, r.Close}}, nil
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("zstd %s: %w", name, err)
		}
		return &decoded{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil }, r.Close,
		}}, nil
	case CodecLZ4:
		return &decoded{Reader: lz4.NewReader(r), closers: []func() error{r.Close}}, nil
	case CodecBrotli:
		return &decoded{Reader: brotli.NewReader(r), closers: []func() error{r.Close}}, nil
	default:
		return r, nil
	}
}

// OpenDecoded opens name from src and applies Decode.
func OpenDecoded(ctx context.Context, src Source, name string) (io.ReadCloser, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return Decode(name, rc)
}

type decoded struct {
	io.Reader
	closers []func() error
}

func (d *decoded) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
