// Package testutil provides shared test fixtures for nodepulse packages.
//
// Goroutines must not call t.Fatal, so concurrent tests collect errors
// through GoroutineTest and report them from the test goroutine.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/xtxerr/nodepulse/internal/cachestore"
	"github.com/xtxerr/nodepulse/internal/monitor"
	"github.com/xtxerr/nodepulse/internal/netdata"
)

// =============================================================================
// Redis
// =============================================================================

// NewRedis starts an in-process Redis and returns a Cache Store connected to
// it. Both are torn down with the test.
func NewRedis(t testing.TB) (*cachestore.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := cachestore.DefaultConfig()
	cfg.Addr = mr.Addr()

	store := cachestore.NewRedis(cfg)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

// =============================================================================
// Config Store fakes
// =============================================================================

type monitorKey struct{ hostname, identity string }

// Finder is an in-memory monitor.Finder that counts lookups.
type Finder struct {
	mu       sync.Mutex
	monitors map[monitorKey]monitor.Config
	calls    atomic.Int64

	// Err, when set, is returned from every lookup.
	Err error

	// Block, when set, is received from before each lookup returns.
	Block chan struct{}
}

var _ monitor.Finder = (*Finder)(nil)

// NewFinder returns an empty Finder.
func NewFinder() *Finder {
	return &Finder{monitors: make(map[monitorKey]monitor.Config)}
}

// Put provisions a monitor.
func (f *Finder) Put(hostname, identity string, cfg monitor.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors[monitorKey{hostname, identity}] = cfg
}

// Calls returns the number of lookups served.
func (f *Finder) Calls() int64 {
	return f.calls.Load()
}

// FindMonitor implements monitor.Finder.
func (f *Finder) FindMonitor(ctx context.Context, hostname, identity string) (*monitor.Config, error) {
	f.calls.Add(1)
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.monitors[monitorKey{hostname, identity}]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// =============================================================================
// Samples
// =============================================================================

// Sample builds a validated sample with the fields aggregation reads.
func Sample(hostname, chartContext, id string, value float64) netdata.Sample {
	return netdata.Sample{
		Hostname:     hostname,
		ChartID:      chartContext,
		ChartContext: chartContext,
		ID:           id,
		Value:        value,
	}
}

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest runs functions concurrently and reports their errors from
// the test goroutine on Wait.
//
//	gt := testutil.NewGoroutineTest(t)
//	for i := 0; i < 10; i++ {
//	    gt.Go(func() error { return doSomething() })
//	}
//	gt.Wait()
type GoroutineTest struct {
	t      testing.TB
	wg     sync.WaitGroup
	mu     sync.Mutex
	errors []error
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t testing.TB) *GoroutineTest {
	return &GoroutineTest{t: t}
}

// Go runs fn in a goroutine and records its error.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			gt.mu.Lock()
			gt.errors = append(gt.errors, err)
			gt.mu.Unlock()
		}
	}()
}

// Wait blocks until every goroutine returned and fails the test if any
// returned an error.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()

	if len(gt.errors) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(gt.errors))
		for i, err := range gt.errors {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}
