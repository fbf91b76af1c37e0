package server_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/monitor"
	"github.com/xtxerr/nodepulse/internal/netdata"
	"github.com/xtxerr/nodepulse/internal/observability"
	"github.com/xtxerr/nodepulse/internal/server"
	"github.com/xtxerr/nodepulse/internal/storage/compress"
	"github.com/xtxerr/nodepulse/internal/storage/ingestion"
	"github.com/xtxerr/nodepulse/internal/storage/ring"
	"github.com/xtxerr/nodepulse/internal/storage/snapshot"
	"github.com/xtxerr/nodepulse/internal/testutil"
)

type fixture struct {
	handler http.Handler
	mr      *miniredis.Miniredis
	finder  *testutil.Finder
	checks  map[string]server.HealthCheck
}

func setup(t *testing.T, cfg server.Config) *fixture {
	t.Helper()

	redis, mr := testutil.NewRedis(t)
	codec, err := compress.New(compress.DefaultOptions())
	if err != nil {
		t.Fatalf("compress.New: %v", err)
	}
	t.Cleanup(codec.Close)

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)
	registry := charts.NewDefault()
	finder := testutil.NewFinder()
	series := ring.New(redis, registry, ring.DefaultOptions())
	snapshots := snapshot.New(redis, codec)

	svc, err := ingestion.New(ingestion.Deps{
		Rules:     netdata.DefaultRules(),
		Registry:  registry,
		Monitors:  monitor.NewCache(redis, finder, metrics),
		Ring:      series,
		Snapshots: snapshots,
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("ingestion.New: %v", err)
	}

	checks := map[string]server.HealthCheck{"cache": redis.Ping}
	srv := server.New(cfg, server.Deps{
		Ingest:    svc,
		Snapshots: snapshots,
		Series:    series,
		Registry:  registry,
		Gatherer:  reg,
		Checks:    checks,
	})
	t.Cleanup(srv.Close)
	return &fixture{handler: srv.Handler(), mr: mr, finder: finder, checks: checks}
}

func (f *fixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:51234"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

const batch = `[
  {"hostname":"web1","chart_id":"system.cpu","chart_context":"system.cpu","units":"percentage","id":"user","value":12.5,"timestamp":1700000000},
  {"hostname":"web1","chart_id":"system.cpu","chart_context":"system.cpu","units":"percentage","id":"system","value":3,"timestamp":1700000000},
  {"hostname":"web1","chart_id":"mem.swap","chart_context":"mem.swap","units":"MiB","id":"free","value":2048,"timestamp":1700000000}
]`

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestPut_Accepted(t *testing.T) {
	f := setup(t, server.Config{})
	f.finder.Put("web1", "10.0.0.1", monitor.Config{RetentionHours: 1, ChartMask: charts.CPUUsage})

	rec := f.do(http.MethodPost, "/api/v1/put", batch, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	var result netdata.ParsedResult
	decodeBody(t, rec, &result)
	if result.Hostname != "web1" || result.Metrics["system.cpu.user"].Value != 12.5 {
		t.Errorf("result = %+v", result)
	}

	if !f.mr.Exists(ring.Key("10.0.0.1", "web1", "CPU:USAGE", 1)) {
		t.Error("series not written")
	}
}

func TestPut_ValidationError(t *testing.T) {
	f := setup(t, server.Config{})

	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"empty array", `[]`, "body"},
		{"not an array", `{"hostname":"web1"}`, "body"},
		{"missing value", `[{"hostname":"web1","chart_id":"a","chart_context":"a","id":"x"}]`, "value"},
		{"unknown key", `[{"hostname":"web1","chart_id":"a","chart_context":"a","id":"x","value":1,"bogus":1}]`, "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/put", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			var body errors.Body
			decodeBody(t, rec, &body)
			if body.Message == "" || body.Reason != tt.reason {
				t.Errorf("body = %+v, want reason %q", body, tt.reason)
			}
		})
	}
	if f.finder.Calls() != 0 {
		t.Error("config store consulted for invalid batches")
	}
}

func TestPut_BodyTooLarge(t *testing.T) {
	f := setup(t, server.Config{MaxBodyBytes: 64})

	rec := f.do(http.MethodPost, "/api/v1/put", batch, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPut_Unprovisioned(t *testing.T) {
	f := setup(t, server.Config{})

	rec := f.do(http.MethodPost, "/api/v1/put", batch, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body errors.Body
	decodeBody(t, rec, &body)
	if body.Message != errors.KindUnprovisioned.String() {
		t.Errorf("body = %+v", body)
	}
	if keys := f.mr.Keys(); len(keys) != 0 {
		t.Errorf("keys written for unprovisioned host: %v", keys)
	}
}

func TestPut_StoreUnavailableHidesDetails(t *testing.T) {
	f := setup(t, server.Config{})
	f.finder.Err = fmt.Errorf("dial tcp 10.9.9.9:5432: connection refused")

	rec := f.do(http.MethodPost, "/api/v1/put", batch, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.9.9.9") {
		t.Errorf("store details leaked: %s", rec.Body.String())
	}
}

func TestPut_ForwardedFor(t *testing.T) {
	f := setup(t, server.Config{TrustForwardedFor: true})
	f.finder.Put("web1", "203.0.113.9", monitor.Config{RetentionHours: 1, ChartMask: charts.CPUUsage})

	rec := f.do(http.MethodPost, "/api/v1/put", batch, map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.0.0.254",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !f.mr.Exists(snapshot.Key("web1", "203.0.113.9")) {
		t.Error("snapshot not keyed by forwarded identity")
	}
}

func TestPut_ForwardedForIgnoredUntrusted(t *testing.T) {
	f := setup(t, server.Config{})
	f.finder.Put("web1", "203.0.113.9", monitor.Config{RetentionHours: 1, ChartMask: charts.CPUUsage})

	rec := f.do(http.MethodPost, "/api/v1/put", batch, map[string]string{"X-Forwarded-For": "203.0.113.9"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestPut_RepeatedRejectsBlocked(t *testing.T) {
	f := setup(t, server.Config{RejectLimit: 2, RejectWindow: time.Minute})

	for i := 0; i < 2; i++ {
		if rec := f.do(http.MethodPost, "/api/v1/put", batch, nil); rec.Code != http.StatusForbidden {
			t.Fatalf("push %d: status = %d", i, rec.Code)
		}
	}
	calls := f.finder.Calls()

	rec := f.do(http.MethodPost, "/api/v1/put", batch, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if f.finder.Calls() != calls {
		t.Error("blocked push reached the config store")
	}
}

func TestOverview(t *testing.T) {
	f := setup(t, server.Config{})
	f.finder.Put("web1", "10.0.0.1", monitor.Config{RetentionHours: 1, ChartMask: charts.CPUUsage})

	if rec := f.do(http.MethodGet, "/api/v1/nodes/10.0.0.1/web1/overview", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("before push: status = %d", rec.Code)
	}

	f.do(http.MethodPost, "/api/v1/put", batch, nil)

	rec := f.do(http.MethodGet, "/api/v1/nodes/10.0.0.1/web1/overview", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result netdata.ParsedResult
	decodeBody(t, rec, &result)
	if result.Metrics["mem.swap.free"].Value != 2048 {
		t.Errorf("overview = %+v", result)
	}
}

func TestChart(t *testing.T) {
	f := setup(t, server.Config{})
	f.finder.Put("web1", "10.0.0.1", monitor.Config{RetentionHours: 1, ChartMask: charts.CPUUsage})

	for i := 0; i < 3; i++ {
		if rec := f.do(http.MethodPost, "/api/v1/put", batch, nil); rec.Code != http.StatusOK {
			t.Fatalf("push %d: status = %d", i, rec.Code)
		}
	}

	rec := f.do(http.MethodGet, "/api/v1/nodes/10.0.0.1/web1/charts/CPU:USAGE?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Chart  string             `json:"chart"`
		Fields []ring.FieldSeries `json:"fields"`
	}
	decodeBody(t, rec, &resp)
	if resp.Chart != "CPU:USAGE" || len(resp.Fields) != 5 {
		t.Fatalf("response = %+v", resp)
	}
	if user := resp.Fields[1]; user.Field != "system.cpu.user" || len(user.Values) != 2 || user.Values[0] != 12.5 {
		t.Errorf("user series = %+v", user)
	}
	if len(resp.Fields[0].Values) != 0 {
		t.Errorf("steal series = %+v", resp.Fields[0])
	}

	if rec := f.do(http.MethodGet, "/api/v1/nodes/10.0.0.1/web1/charts/GPU:USAGE", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown chart: status = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/nodes/10.0.0.1/web1/charts/CPU:USAGE?limit=-1", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", rec.Code)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	f := setup(t, server.Config{})
	f.finder.Put("web1", "10.0.0.1", monitor.Config{RetentionHours: 1, ChartMask: charts.CPUUsage})
	f.do(http.MethodPost, "/api/v1/put", batch, nil)

	rec := f.do(http.MethodGet, "/api/v1/stats", "", nil)
	var stats ingestion.ServiceStats
	decodeBody(t, rec, &stats)
	if stats.EventsAccepted != 1 || stats.SamplesReceived != 3 {
		t.Errorf("stats = %+v", stats)
	}

	rec = f.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `nodepulse_ingest_events_total{outcome="ok"} 1`) {
		t.Errorf("metrics = %d\n%s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	f := setup(t, server.Config{})

	if rec := f.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthy: status = %d", rec.Code)
	}

	f.checks["metastore"] = func(context.Context) error { return fmt.Errorf("closed") }
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded: status = %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "degraded" || body.Checks["metastore"] != "unavailable" || body.Checks["cache"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestServe_Shutdown(t *testing.T) {
	srv := server.New(server.Config{Listen: "127.0.0.1:0", ShutdownTimeout: time.Second}, server.Deps{Registry: charts.NewDefault()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
