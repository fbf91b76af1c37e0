package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/xtxerr/nodepulse/config"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/logging"
	"github.com/xtxerr/nodepulse/internal/storage/ring"
	"github.com/xtxerr/nodepulse/internal/validation"
)

// =============================================================================
// Ingestion
// =============================================================================

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	identity := s.identity(r)
	ctx := logging.ContextWithIdentity(r.Context(), identity)

	if s.rejects.IsBlocked(identity) {
		logging.WithContext(ctx).Warn("blocked after repeated unprovisioned pushes")
		writeJSON(w, http.StatusTooManyRequests, errors.Body{
			Message: "Too Many Requests - IP Blocked",
			Reason:  "rate_limited",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errors.Body{
				Message: errors.KindValidation.String(),
				Info:    "request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
				Reason:  "body",
			})
			return
		}
		s.writeError(ctx, w, errors.Validation("body", "could not be read"))
		return
	}

	raw, err := validation.DecodeBatch(bytes.NewReader(body))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	samples, err := validation.ValidateBatch(raw)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	out, err := s.deps.Ingest.Ingest(ctx, identity, samples)
	if err != nil {
		if errors.KindOf(err) == errors.KindUnprovisioned {
			s.rejects.RecordFailure(identity)
		}
		s.writeError(ctx, w, err)
		return
	}
	s.rejects.Reset(identity)

	writeJSON(w, http.StatusOK, out.Result)
}

// =============================================================================
// Reads
// =============================================================================

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	identity, hostname := r.PathValue("identity"), r.PathValue("hostname")

	result, ok, err := s.deps.Snapshots.Get(r.Context(), hostname, identity)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if !ok {
		s.writeError(r.Context(), w, errors.NotFound("overview", hostname))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type chartResponse struct {
	Chart          string             `json:"chart"`
	TranslationKey string             `json:"translation_key"`
	Hostname       string             `json:"hostname"`
	Identity       string             `json:"identity"`
	IntervalSec    float64            `json:"interval_seconds"`
	Fields         []ring.FieldSeries `json:"fields"`
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	identity, hostname, name := r.PathValue("identity"), r.PathValue("hostname"), r.PathValue("chart")

	chart, ok := s.deps.Registry.Lookup(name)
	if !ok {
		s.writeError(r.Context(), w, errors.NotFound("chart", name))
		return
	}

	limit := int64(config.DefaultSeriesLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(r.Context(), w, errors.Validation("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	fields, err := s.deps.Series.Chart(r.Context(), identity, hostname, name, limit)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, chartResponse{
		Chart:          chart.Name,
		TranslationKey: chart.TranslationKey,
		Hostname:       hostname,
		Identity:       identity,
		IntervalSec:    s.deps.Series.SampleInterval().Seconds(),
		Fields:         fields,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Ingest.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(r.Context()); err != nil {
			log.Warn("health check failed", "dependency", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// =============================================================================
// Responses
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err as {message, info, reason} with the status of its
// kind. Server-side failures are logged with the full error; clients only
// see the public body.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	e := errors.AsError(err)
	status := e.Kind.HTTPStatus()

	logger := logging.WithContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "error", err)
	}

	writeJSON(w, status, e.PublicBody())
}
