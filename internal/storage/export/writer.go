// Package export writes stored ring series to Parquet files for offline
// analysis.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/nodepulse/internal/storage/ring"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression is "zstd", "snappy", "gzip", "lz4" or "none".
	Compression string `yaml:"compression"`
}

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{Compression: "zstd"}
}

func codec(name string) compress.Codec {
	switch name {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "lz4":
		return &parquet.Lz4Raw
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Zstd
	}
}

// SeriesRow is one stored point. Position 0 is the newest value of its
// series.
type SeriesRow struct {
	Identity   string  `parquet:"identity,dict"`
	Hostname   string  `parquet:"hostname,dict"`
	Chart      string  `parquet:"chart,dict"`
	Field      string  `parquet:"field,dict"`
	FieldIndex int32   `parquet:"field_index"`
	Position   int32   `parquet:"position"`
	Value      float64 `parquet:"value"`
	ExportedAt int64   `parquet:"exported_at_ms"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")

// Writer writes series rows to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[SeriesRow]
	rowCount int64
	closed   bool
}

// NewWriter creates the file at path, including missing directories.
func NewWriter(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	return &Writer{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[SeriesRow](f, parquet.Compression(codec(opts.Compression))),
	}, nil
}

// Write appends rows.
func (w *Writer) Write(rows []SeriesRow) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// =============================================================================
// Collection
// =============================================================================

// SeriesSource reads the field series of one chart.
type SeriesSource interface {
	Chart(ctx context.Context, identity, hostname, chart string, limit int64) ([]ring.FieldSeries, error)
}

// Collect reads every series of the given charts for one host and flattens
// them to rows.
func Collect(ctx context.Context, src SeriesSource, identity, hostname string, chartNames []string) ([]SeriesRow, error) {
	now := time.Now().UnixMilli()
	var rows []SeriesRow
	for _, chart := range chartNames {
		series, err := src.Chart(ctx, identity, hostname, chart, 0)
		if err != nil {
			return nil, fmt.Errorf("chart %s: %w", chart, err)
		}
		for _, fs := range series {
			for pos, v := range fs.Values {
				rows = append(rows, SeriesRow{
					Identity:   identity,
					Hostname:   hostname,
					Chart:      chart,
					Field:      fs.Field,
					FieldIndex: int32(fs.Index),
					Position:   int32(pos),
					Value:      v,
					ExportedAt: now,
				})
			}
		}
	}
	return rows, nil
}

// WriteHost collects the host's series and writes them to path. It returns
// the number of rows written.
func WriteHost(ctx context.Context, path string, opts Options, src SeriesSource, identity, hostname string, chartNames []string) (int64, error) {
	rows, err := Collect(ctx, src, identity, hostname, chartNames)
	if err != nil {
		return 0, err
	}

	w, err := NewWriter(path, opts)
	if err != nil {
		return 0, err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.RowCount(), nil
}
