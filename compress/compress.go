// Package compress implements the Content-Encoding codecs: none, gzip,
// deflate, br. It is deliberately independent of the socket and reactor
// layers; httpx does not call it, so callers wrap an httpx
// request/response body reader or writer with it themselves.
package compress

import (
	"compress/flate"
	"compress/gzip"
	"io"

	"github.com/andybalholm/brotli"
)

// Algorithm identifies a Content-Encoding.
type Algorithm uint8

const (
	None Algorithm = iota
	Gzip
	Deflate
	Brotli
)

// String returns the Content-Encoding token for a, e.g. "gzip".
func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	case Deflate:
		return "deflate"
	case Brotli:
		return "br"
	default:
		return "none"
	}
}

// Parse maps a Content-Encoding token to an Algorithm. An unrecognized
// token maps to None: unknown encodings pass through uncompressed.
func Parse(token string) Algorithm {
	switch token {
	case "gzip":
		return Gzip
	case "deflate":
		return Deflate
	case "br":
		return Brotli
	default:
		return None
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Reader wraps r with a decompressing io.ReadCloser for a, or passes r
// through unmodified (wrapped in a no-op Closer) when a is None.
func (a Algorithm) Reader(r io.Reader) (io.ReadCloser, error) {
	switch a {
	case Gzip:
		return gzip.NewReader(r)
	case Deflate:
		return flate.NewReader(r), nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Writer wraps w with a compressing io.WriteCloser for a. The caller
// must Close the returned writer to flush trailing compressed bytes
// before closing w itself.
func (a Algorithm) Writer(w io.Writer) (io.WriteCloser, error) {
	switch a {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Deflate:
		return flate.NewWriter(w, flate.DefaultCompression)
	case Brotli:
		return brotli.NewWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}
