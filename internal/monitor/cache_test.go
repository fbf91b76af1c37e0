package monitor_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/monitor"
	"github.com/xtxerr/nodepulse/internal/testutil"
)

type countingObserver struct {
	hits, misses atomic.Int64
}

func (o *countingObserver) CacheHit()  { o.hits.Add(1) }
func (o *countingObserver) CacheMiss() { o.misses.Add(1) }

func TestKey(t *testing.T) {
	if got := monitor.Key("web1", "10.0.0.1"); got != "CFG:10.0.0.1:web1" {
		t.Errorf("Key = %q", got)
	}
}

func TestCache_MissLoadsAndWritesBack(t *testing.T) {
	store, mr := testutil.NewRedis(t)
	finder := testutil.NewFinder()
	obs := &countingObserver{}
	want := monitor.Config{OwnerID: 3, RetentionHours: 2, ChartMask: charts.CPUUsage}
	finder.Put("web1", "10.0.0.1", want)

	c := monitor.NewCache(store, finder, obs)
	ctx := context.Background()

	got, err := c.Get(ctx, "web1", "10.0.0.1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}

	key := monitor.Key("web1", "10.0.0.1")
	if !mr.Exists(key) {
		t.Fatal("config not written back")
	}
	if ttl := mr.TTL(key); ttl != 0 {
		t.Errorf("write-back has TTL %v, want none", ttl)
	}

	// Second call is served from the cache.
	got, err = c.Get(ctx, "web1", "10.0.0.1")
	if err != nil || got == nil || *got != want {
		t.Fatalf("cached Get = %+v, %v", got, err)
	}
	if finder.Calls() != 1 {
		t.Errorf("config store called %d times, want 1", finder.Calls())
	}
	if obs.hits.Load() != 1 || obs.misses.Load() != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", obs.hits.Load(), obs.misses.Load())
	}
}

func TestCache_Absent(t *testing.T) {
	store, mr := testutil.NewRedis(t)
	c := monitor.NewCache(store, testutil.NewFinder(), nil)

	got, err := c.Get(context.Background(), "ghost", "ip")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expected absent, got %+v", got)
	}
	if mr.Exists(monitor.Key("ghost", "ip")) {
		t.Error("absent config was cached")
	}
}

func TestCache_ConfigStoreErrorIsNotAbsent(t *testing.T) {
	store, _ := testutil.NewRedis(t)
	finder := testutil.NewFinder()
	finder.Err = errors.StoreUnavailable("config store", fmt.Errorf("connection refused"))

	c := monitor.NewCache(store, finder, nil)
	got, err := c.Get(context.Background(), "web1", "ip")
	if err == nil {
		t.Fatalf("expected error, got config %+v", got)
	}
	if errors.KindOf(err) != errors.KindStoreUnavailable {
		t.Errorf("kind = %v, want StoreUnavailable", errors.KindOf(err))
	}
}

func TestCache_CacheStoreErrorIsNotAbsent(t *testing.T) {
	store, mr := testutil.NewRedis(t)
	finder := testutil.NewFinder()
	finder.Put("web1", "ip", monitor.Config{RetentionHours: 1})

	mr.SetError("ERR simulated failure")

	c := monitor.NewCache(store, finder, nil)
	_, err := c.Get(context.Background(), "web1", "ip")
	if errors.KindOf(err) != errors.KindStoreUnavailable {
		t.Errorf("expected StoreUnavailable, got %v", err)
	}
	if finder.Calls() != 0 {
		t.Error("config store consulted after cache failure")
	}
}

func TestCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	store, mr := testutil.NewRedis(t)
	finder := testutil.NewFinder()
	want := monitor.Config{OwnerID: 9, RetentionHours: 4, ChartMask: charts.DiskIO}
	finder.Put("web1", "ip", want)

	mr.Set(monitor.Key("web1", "ip"), "{not json")

	c := monitor.NewCache(store, finder, nil)
	got, err := c.Get(context.Background(), "web1", "ip")
	if err != nil || got == nil || *got != want {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if finder.Calls() != 1 {
		t.Errorf("config store calls = %d, want 1", finder.Calls())
	}
}

func TestCache_Invalidate(t *testing.T) {
	store, mr := testutil.NewRedis(t)
	finder := testutil.NewFinder()
	finder.Put("web1", "ip", monitor.Config{RetentionHours: 1})

	c := monitor.NewCache(store, finder, nil)
	ctx := context.Background()
	if _, err := c.Get(ctx, "web1", "ip"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	finder.Put("web1", "ip", monitor.Config{RetentionHours: 48})
	if err := c.Invalidate(ctx, "web1", "ip"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if mr.Exists(monitor.Key("web1", "ip")) {
		t.Fatal("entry still cached")
	}

	got, err := c.Get(ctx, "web1", "ip")
	if err != nil || got.RetentionHours != 48 {
		t.Errorf("after invalidate = %+v, %v", got, err)
	}
}

func TestCache_ConcurrentMissesCoalesce(t *testing.T) {
	store, _ := testutil.NewRedis(t)
	finder := testutil.NewFinder()
	finder.Put("web1", "ip", monitor.Config{RetentionHours: 1})
	finder.Block = make(chan struct{})

	c := monitor.NewCache(store, finder, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gt := testutil.NewGoroutineTest(t)
	for i := 0; i < 8; i++ {
		gt.Go(func() error {
			cfg, err := c.Get(ctx, "web1", "ip")
			if err != nil {
				return err
			}
			if cfg == nil || cfg.RetentionHours != 1 {
				return fmt.Errorf("unexpected config %+v", cfg)
			}
			return nil
		})
	}

	// Let the waiters pile up behind the first lookup.
	time.Sleep(50 * time.Millisecond)
	close(finder.Block)
	gt.Wait()

	// Callers that miss after the first load finished hit the cache instead.
	if calls := finder.Calls(); calls != 1 {
		t.Errorf("config store calls = %d, want 1", calls)
	}
}
