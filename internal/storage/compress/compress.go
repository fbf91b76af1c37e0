// Package compress serializes values to JSON and compresses them.
//
// Decoding detects the codec from the frame header, so snapshots written
// with gzip stay readable after switching to zstd and vice versa.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/xtxerr/nodepulse/internal/constants"
)

// CompressionType selects the codec used for writes.
type CompressionType string

const (
	CompressionGzip CompressionType = constants.CompressionGzip
	CompressionZstd CompressionType = constants.CompressionZstd
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Options configures a Codec.
type Options struct {
	Compression CompressionType `yaml:"compression"`

	// Level is codec specific. Zero selects the codec default.
	Level int `yaml:"level"`
}

// DefaultOptions returns gzip at its default level.
func DefaultOptions() Options {
	return Options{Compression: CompressionGzip}
}

// Codec is safe for concurrent use.
type Codec struct {
	opts   Options
	zenc   *zstd.Encoder
	zdec   *zstd.Decoder
	gzPool sync.Pool
}

// New creates a Codec.
func New(opts Options) (*Codec, error) {
	if opts.Compression == "" {
		opts.Compression = CompressionGzip
	}

	c := &Codec{opts: opts}

	switch opts.Compression {
	case CompressionGzip:
		level := opts.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
			return nil, fmt.Errorf("gzip level %d: %w", opts.Level, err)
		}
		c.gzPool.New = func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, level)
			return w
		}
	case CompressionZstd:
		var encOpts []zstd.EOption
		if opts.Level != 0 {
			encOpts = append(encOpts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)))
		}
		enc, err := zstd.NewWriter(nil, encOpts...)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		c.zenc = enc
	default:
		return nil, fmt.Errorf("unsupported compression %q", opts.Compression)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	c.zdec = dec

	return c, nil
}

// Compression returns the codec used for writes.
func (c *Codec) Compression() CompressionType {
	return c.opts.Compression
}

// Marshal serializes v to JSON and compresses it.
func (c *Codec) Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	if c.opts.Compression == CompressionZstd {
		return c.zenc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	}

	var buf bytes.Buffer
	w := c.gzPool.Get().(*gzip.Writer)
	defer c.gzPool.Put(w)
	w.Reset(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decompresses b and decodes the JSON into v.
func (c *Codec) Unmarshal(b []byte, v any) error {
	var raw []byte
	var err error

	switch {
	case bytes.HasPrefix(b, zstdMagic):
		raw, err = c.zdec.DecodeAll(b, nil)
	case bytes.HasPrefix(b, gzipMagic):
		raw, err = gunzip(b)
	default:
		return fmt.Errorf("decompress: unknown frame header")
	}
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases codec resources.
func (c *Codec) Close() {
	if c.zenc != nil {
		c.zenc.Close()
	}
	c.zdec.Close()
}
