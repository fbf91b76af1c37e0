package snapshot_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/netdata"
	"github.com/xtxerr/nodepulse/internal/storage/compress"
	"github.com/xtxerr/nodepulse/internal/storage/snapshot"
	"github.com/xtxerr/nodepulse/internal/testutil"
)

func newStore(t *testing.T, opts compress.Options) (*snapshot.Store, *miniredis.Miniredis) {
	t.Helper()
	cache, mr := testutil.NewRedis(t)
	codec, err := compress.New(opts)
	if err != nil {
		t.Fatalf("compress.New: %v", err)
	}
	t.Cleanup(codec.Close)
	return snapshot.New(cache, codec), mr
}

func TestKey(t *testing.T) {
	if got := snapshot.Key("web1", "10.0.0.1"); got != "SNAP:10.0.0.1:web1:OVERVIEW" {
		t.Errorf("Key = %q", got)
	}
}

func TestPutGet(t *testing.T) {
	for _, c := range []compress.CompressionType{compress.CompressionGzip, compress.CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			store, mr := newStore(t, compress.Options{Compression: c})
			ctx := context.Background()

			in := netdata.NewParsedResult("web1")
			in.Metrics["system.ram.used"] = netdata.MetricValue{Value: 2048, Units: "MiB"}
			in.Individual["disk"] = map[string]map[string]float64{"sda": {"device_smart_status.ok": 0}}

			if _, err := store.Put(ctx, "web1", "ip", in, 6); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if ttl := mr.TTL(snapshot.Key("web1", "ip")); ttl != 6*time.Hour {
				t.Errorf("TTL = %v, want 6h", ttl)
			}

			out, ok, err := store.Get(ctx, "web1", "ip")
			if err != nil || !ok {
				t.Fatalf("Get = %v, %v", ok, err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Errorf("Get = %+v, want %+v", out, in)
			}
		})
	}
}

func TestGet_Absent(t *testing.T) {
	store, _ := newStore(t, compress.DefaultOptions())

	out, ok, err := store.Get(context.Background(), "ghost", "ip")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || out != nil {
		t.Errorf("expected absent, got %+v", out)
	}
}

func TestPut_ReplacesPrevious(t *testing.T) {
	store, _ := newStore(t, compress.DefaultOptions())
	ctx := context.Background()

	first := netdata.NewParsedResult("web1")
	first.Metrics["a.b"] = netdata.MetricValue{Value: 1, Units: "x"}
	second := netdata.NewParsedResult("web1")
	second.Metrics["c.d"] = netdata.MetricValue{Value: 2, Units: "y"}

	store.Put(ctx, "web1", "ip", first, 1)
	store.Put(ctx, "web1", "ip", second, 1)

	out, _, err := store.Get(ctx, "web1", "ip")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, stale := out.Metrics["a.b"]; stale || out.Metrics["c.d"].Value != 2 {
		t.Errorf("snapshot not replaced: %+v", out.Metrics)
	}
}

func TestPut_InvalidRetention(t *testing.T) {
	store, mr := newStore(t, compress.DefaultOptions())

	_, err := store.Put(context.Background(), "web1", "ip", netdata.NewParsedResult("web1"), 0)
	if !errors.Is(err, errors.ErrInvalidRetention) {
		t.Errorf("expected ErrInvalidRetention, got %v", err)
	}
	if mr.Exists(snapshot.Key("web1", "ip")) {
		t.Error("snapshot written without expiry")
	}
}
