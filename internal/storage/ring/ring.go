// Package ring stores one bounded, newest-first series per chart field.
//
// A series lives at TS:<identity>:<hostname>:<chart>:<fieldIndex>. Each
// append pushes at the head, trims to the retention capacity and refreshes
// the key's expiry to the full retention window, so an idle series vanishes
// after one window.
package ring

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/nodepulse/config"
	"github.com/xtxerr/nodepulse/internal/cachestore"
	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/constants"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/monitor"
	"github.com/xtxerr/nodepulse/internal/netdata"
)

// Point is one value to append to one chart field's series.
type Point struct {
	Hostname       string
	Identity       string
	Chart          string
	FieldIndex     int
	Field          string
	Value          float64
	RetentionHours float64
}

// Key returns the series key of p.
func (p Point) Key() string {
	return Key(p.Identity, p.Hostname, p.Chart, p.FieldIndex)
}

// FieldError reports a failed append for one field.
type FieldError struct {
	Point Point
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s[%d] %s: %v", e.Point.Chart, e.Point.FieldIndex, e.Point.Field, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// Key builds a series key.
func Key(identity, hostname, chart string, fieldIndex int) string {
	return strings.Join([]string{
		constants.KeyPrefixSeries, identity, hostname, chart, strconv.Itoa(fieldIndex),
	}, constants.KeySeparator)
}

// Capacity returns floor(retentionHours*3600 / interval).
func Capacity(retentionHours float64, interval time.Duration) int64 {
	if retentionHours <= 0 || interval <= 0 {
		return 0
	}
	return int64(math.Floor(retentionHours * 3600 / interval.Seconds()))
}

// Options configures a Store.
type Options struct {
	// SampleInterval is the expected agent push cadence.
	SampleInterval time.Duration

	// WriteConcurrency bounds concurrent appends in AppendAll.
	WriteConcurrency int
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SampleInterval:   config.DefaultSampleInterval,
		WriteConcurrency: config.DefaultWriteConcurrency,
	}
}

// Store appends to and reads ring series.
//
// Store is safe for concurrent use.
type Store struct {
	cache    cachestore.Store
	registry *charts.Registry
	opts     Options
}

// New creates a Store.
func New(cache cachestore.Store, registry *charts.Registry, opts Options) *Store {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = config.DefaultSampleInterval
	}
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = config.DefaultWriteConcurrency
	}
	return &Store{cache: cache, registry: registry, opts: opts}
}

// SampleInterval returns the configured push cadence.
func (s *Store) SampleInterval() time.Duration {
	return s.opts.SampleInterval
}

// Append pushes p.Value onto its series.
func (s *Store) Append(ctx context.Context, p Point) error {
	capacity := Capacity(p.RetentionHours, s.opts.SampleInterval)
	if capacity < 1 {
		return fmt.Errorf("%w: %vh holds no %s samples", errors.ErrInvalidRetention, p.RetentionHours, s.opts.SampleInterval)
	}
	ttl := monitor.RetentionTTL(p.RetentionHours)

	value := strconv.FormatFloat(p.Value, 'f', -1, 64)
	return s.cache.PushBounded(ctx, p.Key(), []byte(value), capacity, ttl)
}

// AppendAll appends every point concurrently. A failed field never stops
// the others; failures are returned per field, in input order.
func (s *Store) AppendAll(ctx context.Context, points []Point) []FieldError {
	if len(points) == 0 {
		return nil
	}

	errs := make([]error, len(points))
	var g errgroup.Group
	g.SetLimit(s.opts.WriteConcurrency)

	for i := range points {
		g.Go(func() error {
			errs[i] = s.Append(ctx, points[i])
			return nil
		})
	}
	g.Wait()

	var failed []FieldError
	for i, err := range errs {
		if err != nil {
			failed = append(failed, FieldError{Point: points[i], Err: err})
		}
	}
	return failed
}

// Points builds the appends for one ingestion event: for every chart in
// mask, one point per field present in result.Metrics.
func (s *Store) Points(mask charts.Mask, result *netdata.ParsedResult, identity string, retentionHours float64) []Point {
	var points []Point
	for _, name := range s.registry.Decode(mask) {
		fields, _ := s.registry.Fields(name)
		for i, field := range fields {
			mv, ok := result.Metric(field)
			if !ok {
				continue
			}
			points = append(points, Point{
				Hostname:       result.Hostname,
				Identity:       identity,
				Chart:          name,
				FieldIndex:     i,
				Field:          field,
				Value:          mv.Value,
				RetentionHours: retentionHours,
			})
		}
	}
	return points
}

// Range returns up to limit values of one series, newest first.
func (s *Store) Range(ctx context.Context, identity, hostname, chart string, fieldIndex int, limit int64) ([]float64, error) {
	raw, err := s.cache.Range(ctx, Key(identity, hostname, chart, fieldIndex), limit)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(raw))
	for _, b := range raw {
		v, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return nil, fmt.Errorf("series %s[%d]: %w", chart, fieldIndex, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FieldSeries is the stored series of one chart field.
type FieldSeries struct {
	Field  string    `json:"field"`
	Index  int       `json:"index"`
	Values []float64 `json:"values"`
}

// Chart reads every field series of a chart. Unknown charts are NotFound.
func (s *Store) Chart(ctx context.Context, identity, hostname, chart string, limit int64) ([]FieldSeries, error) {
	fields, ok := s.registry.Fields(chart)
	if !ok {
		return nil, errors.NotFound("chart", chart)
	}

	out := make([]FieldSeries, len(fields))
	for i, field := range fields {
		values, err := s.Range(ctx, identity, hostname, chart, i, limit)
		if err != nil {
			return nil, err
		}
		out[i] = FieldSeries{Field: field, Index: i, Values: values}
	}
	return out, nil
}
