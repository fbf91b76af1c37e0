package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/xtxerr/nodepulse/internal/logging"
)

func capture(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.InitWriter(&buf, level, true)
	t.Cleanup(func() { logging.Init(slog.LevelInfo, false) })
	return &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", lines[len(lines)-1], err)
	}
	return rec
}

func TestComponentFollowsLaterInit(t *testing.T) {
	log := logging.Component("ring")

	buf := capture(t, slog.LevelInfo)
	log.Info("appended", "fields", 3)

	rec := lastRecord(t, buf)
	if rec["component"] != "ring" {
		t.Errorf("component = %v, want ring", rec["component"])
	}
	if rec["msg"] != "appended" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestWithContext(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	ctx := logging.ContextWithRequestID(context.Background(), "r1")
	ctx = logging.ContextWithIdentity(ctx, "10.0.0.1")
	ctx = logging.ContextWithHostname(ctx, "web1")
	logging.WithContext(ctx).Warn("ring write failed")

	rec := lastRecord(t, buf)
	for key, want := range map[string]string{
		"request_id": "r1",
		"identity":   "10.0.0.1",
		"hostname":   "web1",
		"level":      "WARN",
	} {
		if rec[key] != want {
			t.Errorf("%s = %v, want %s", key, rec[key], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, slog.LevelWarn)

	logging.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	logging.Error("kept")
	if rec := lastRecord(t, buf); rec["msg"] != "kept" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" warning ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
