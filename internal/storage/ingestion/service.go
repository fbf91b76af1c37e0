// Package ingestion runs one ingestion event end to end: resolve the host's
// monitor config, aggregate the batch, then persist ring series and the
// overview snapshot.
package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/logging"
	"github.com/xtxerr/nodepulse/internal/monitor"
	"github.com/xtxerr/nodepulse/internal/netdata"
	"github.com/xtxerr/nodepulse/internal/observability"
	"github.com/xtxerr/nodepulse/internal/storage/ring"
	"github.com/xtxerr/nodepulse/internal/storage/snapshot"
	"github.com/xtxerr/nodepulse/internal/validation"
)

// ConfigResolver resolves monitor configs. *monitor.Cache implements it.
type ConfigResolver interface {
	Get(ctx context.Context, hostname, identity string) (*monitor.Config, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Rules     *netdata.Rules
	Registry  *charts.Registry
	Monitors  ConfigResolver
	Ring      *ring.Store
	Snapshots *snapshot.Store

	// Metrics may be nil.
	Metrics *observability.Metrics
}

// Outcome is the result of an accepted ingestion event. FieldErrors lists
// ring appends that failed; those series are stale for this cycle.
type Outcome struct {
	Result      *netdata.ParsedResult
	Config      monitor.Config
	RingWrites  int
	FieldErrors []ring.FieldError
}

// Service orchestrates ingestion events.
//
// Service is safe for concurrent use.
type Service struct {
	deps Deps

	stats stats

	mu      sync.Mutex
	latency *ddsketch.DDSketch
}

type stats struct {
	EventsReceived    atomic.Int64
	EventsAccepted    atomic.Int64
	EventsRejected    atomic.Int64
	EventsFailed      atomic.Int64
	SamplesReceived   atomic.Int64
	RingWrites        atomic.Int64
	RingWriteFailures atomic.Int64
	SnapshotsWritten  atomic.Int64
}

// New creates a Service.
func New(deps Deps) (*Service, error) {
	if deps.Rules == nil || deps.Registry == nil || deps.Monitors == nil || deps.Ring == nil || deps.Snapshots == nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "ingestion: missing dependency")
	}

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return nil, errors.Wrap(err, "latency sketch")
	}

	return &Service{deps: deps, latency: sketch}, nil
}

// Ingest processes one batch pushed from identity. The batch hostname is the
// hostname of its first sample.
//
// Errors are classified: Validation for an empty batch or unusable key
// parts, Unprovisioned when the host has no usable config, StoreUnavailable
// when the config or snapshot store fails. Ring append failures do not fail
// the event.
func (s *Service) Ingest(ctx context.Context, identity string, samples []netdata.Sample) (*Outcome, error) {
	start := time.Now()
	s.stats.EventsReceived.Add(1)

	out, err := s.ingest(ctx, identity, samples)
	took := time.Since(start)
	s.observe(took)

	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindValidation, errors.KindUnprovisioned:
			s.stats.EventsRejected.Add(1)
		default:
			s.stats.EventsFailed.Add(1)
		}
		s.deps.Metrics.EventFailed(err, took)
		return nil, err
	}

	s.stats.EventsAccepted.Add(1)
	s.stats.SamplesReceived.Add(int64(len(samples)))
	s.deps.Metrics.EventSucceeded(len(samples), took)
	return out, nil
}

func (s *Service) ingest(ctx context.Context, identity string, samples []netdata.Sample) (*Outcome, error) {
	if len(samples) == 0 {
		return nil, validation.EmptyBatch()
	}

	hostname := samples[0].Hostname
	if err := validation.ValidateKeyPart("hostname", hostname); err != nil {
		return nil, err
	}
	if err := validation.ValidateKeyPart("identity", identity); err != nil {
		return nil, err
	}

	ctx = logging.ContextWithHostname(logging.ContextWithIdentity(ctx, identity), hostname)
	logger := logging.WithContext(ctx)

	// The config must be resolved before anything reads the mask.
	cfg, err := s.deps.Monitors.Get(ctx, hostname, identity)
	if err != nil {
		err = classify("config store", err)
		logger.Error("monitor config lookup failed", "error", err)
		return nil, err
	}
	if !cfg.Provisioned() || monitor.RetentionTTL(cfg.RetentionHours) <= 0 {
		logger.Info("rejecting batch from unprovisioned host")
		return nil, errors.Unprovisioned(hostname, identity)
	}

	result := netdata.Parse(samples, s.deps.Rules)
	out := &Outcome{Result: result, Config: *cfg}

	var g errgroup.Group
	g.Go(func() error {
		out.RingWrites, out.FieldErrors = s.writeRing(ctx, cfg, result, identity)
		return nil
	})
	g.Go(func() error {
		n, err := s.deps.Snapshots.Put(ctx, hostname, identity, result, cfg.RetentionHours)
		if err != nil {
			return classify("snapshot store", err)
		}
		s.stats.SnapshotsWritten.Add(1)
		s.deps.Metrics.SnapshotSize(n)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("snapshot write failed", "error", err)
		return nil, err
	}

	logger.Debug("batch ingested",
		"samples", len(samples),
		"metrics", len(result.Metrics),
		"ring_writes", out.RingWrites,
		"ring_failures", len(out.FieldErrors))
	return out, nil
}

// writeRing appends every subscribed field present in result. Failures are
// logged per field and returned.
func (s *Service) writeRing(ctx context.Context, cfg *monitor.Config, result *netdata.ParsedResult, identity string) (int, []ring.FieldError) {
	logger := logging.WithContext(ctx)
	registry := s.deps.Registry

	if !registry.IsValid(cfg.ChartMask) {
		logger.Warn("chart mask selects no known chart, skipping series", "mask", uint64(cfg.ChartMask))
		return 0, nil
	}
	if unknown := registry.Unknown(cfg.ChartMask); unknown != 0 {
		logger.Debug("chart mask carries unknown bits", "bits", uint64(unknown))
	}

	points := s.deps.Ring.Points(cfg.ChartMask, result, identity, cfg.RetentionHours)
	failed := s.deps.Ring.AppendAll(ctx, points)
	for _, fe := range failed {
		logger.Warn("series append failed",
			"chart", fe.Point.Chart,
			"field", fe.Point.Field,
			"error", fe.Err)
	}

	s.stats.RingWrites.Add(int64(len(points)))
	s.stats.RingWriteFailures.Add(int64(len(failed)))
	s.deps.Metrics.RingWrites(len(points), len(failed))
	return len(points), failed
}

// classify reports unclassified store errors as StoreUnavailable.
func classify(store string, err error) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.StoreUnavailable(store, err)
}

func (s *Service) observe(took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Only negative values are rejected.
	_ = s.latency.Add(float64(took) / float64(time.Millisecond))
}

// Stats returns current statistics.
func (s *Service) Stats() ServiceStats {
	st := ServiceStats{
		EventsReceived:    s.stats.EventsReceived.Load(),
		EventsAccepted:    s.stats.EventsAccepted.Load(),
		EventsRejected:    s.stats.EventsRejected.Load(),
		EventsFailed:      s.stats.EventsFailed.Load(),
		SamplesReceived:   s.stats.SamplesReceived.Load(),
		RingWrites:        s.stats.RingWrites.Load(),
		RingWriteFailures: s.stats.RingWriteFailures.Load(),
		SnapshotsWritten:  s.stats.SnapshotsWritten.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latency.IsEmpty() {
		return st
	}
	q, err := s.latency.GetValuesAtQuantiles([]float64{0.5, 0.9, 0.99})
	if err == nil {
		st.LatencyP50Ms, st.LatencyP90Ms, st.LatencyP99Ms = q[0], q[1], q[2]
	}
	return st
}

// ServiceStats holds ingestion statistics.
type ServiceStats struct {
	EventsReceived    int64   `json:"events_received"`
	EventsAccepted    int64   `json:"events_accepted"`
	EventsRejected    int64   `json:"events_rejected"`
	EventsFailed      int64   `json:"events_failed"`
	SamplesReceived   int64   `json:"samples_received"`
	RingWrites        int64   `json:"ring_writes"`
	RingWriteFailures int64   `json:"ring_write_failures"`
	SnapshotsWritten  int64   `json:"snapshots_written"`
	LatencyP50Ms      float64 `json:"latency_p50_ms"`
	LatencyP90Ms      float64 `json:"latency_p90_ms"`
	LatencyP99Ms      float64 `json:"latency_p99_ms"`
}
