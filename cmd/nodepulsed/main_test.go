package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/xtxerr/nodepulse/internal/charts"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMaskEncode(t *testing.T) {
	out, err := run(t, "mask", "encode", "CPU:USAGE", "MEM:USAGE")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got, want := strings.TrimSpace(out), "18"; got != want {
		t.Errorf("encode = %q, want %q", got, want)
	}
}

func TestMaskEncode_UnknownChart(t *testing.T) {
	if _, err := run(t, "mask", "encode", "CPU:BOGUS"); err == nil {
		t.Fatal("expected error for unknown chart")
	}
}

func TestMaskDecode(t *testing.T) {
	mask := uint64(charts.CPUUsage|charts.NetOctets) | 1<<40

	out, err := run(t, "mask", "decode", "0x"+strconv.FormatUint(mask, 16))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), out)
	}
	if lines[0] != "CPU:USAGE" || lines[1] != "NET:OCTETS" {
		t.Errorf("names = %q", lines[:2])
	}
	if !strings.HasPrefix(lines[2], "unknown bits:") {
		t.Errorf("missing unknown bits line: %q", lines[2])
	}
}

func TestMaskDecode_Invalid(t *testing.T) {
	if _, err := run(t, "mask", "decode", "not-a-number"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMaskList(t *testing.T) {
	out, err := run(t, "mask", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, name := range charts.NewDefault().Names() {
		if !strings.Contains(out, name) {
			t.Errorf("list output missing %s", name)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	flags := &globalFlags{
		configPath: filepath.Join(t.TempDir(), "absent.yaml"),
		listen:     "127.0.0.1:9999",
		dsn:        ":memory:",
		redisAddr:  "10.0.0.1:6379",
	}

	cfg, err := loadConfig(flags, charts.NewDefault())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9999" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Metastore.DSN != ":memory:" {
		t.Errorf("dsn = %q", cfg.Metastore.DSN)
	}
	if cfg.Cache.Addr != "10.0.0.1:6379" {
		t.Errorf("redis addr = %q", cfg.Cache.Addr)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen: \"\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadConfig(&globalFlags{configPath: path}, charts.NewDefault()); err == nil {
		t.Fatal("expected validation error for empty listen address")
	}
}

func TestExport_RequiresFlags(t *testing.T) {
	if _, err := run(t, "export", "--hostname", "h1"); err == nil {
		t.Fatal("expected error for missing required flags")
	}
}
