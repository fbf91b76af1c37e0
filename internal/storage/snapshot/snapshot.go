// Package snapshot stores the latest compressed ParsedResult per host.
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/xtxerr/nodepulse/internal/cachestore"
	"github.com/xtxerr/nodepulse/internal/constants"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/monitor"
	"github.com/xtxerr/nodepulse/internal/netdata"
	"github.com/xtxerr/nodepulse/internal/storage/compress"
)

// Key returns SNAP:<identity>:<hostname>:OVERVIEW.
func Key(hostname, identity string) string {
	return strings.Join([]string{
		constants.KeyPrefixSnapshot, identity, hostname, constants.SnapshotSuffix,
	}, constants.KeySeparator)
}

// Store reads and writes overview snapshots.
type Store struct {
	cache cachestore.Store
	codec *compress.Codec
}

// New creates a Store.
func New(cache cachestore.Store, codec *compress.Codec) *Store {
	return &Store{cache: cache, codec: codec}
}

// Put compresses result and stores it with an expiry of the retention
// window, replacing any previous snapshot. It returns the stored size.
func (s *Store) Put(ctx context.Context, hostname, identity string, result *netdata.ParsedResult, retentionHours float64) (int, error) {
	ttl := monitor.RetentionTTL(retentionHours)
	if ttl <= 0 {
		return 0, errors.ErrInvalidRetention
	}

	b, err := s.codec.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", hostname, err)
	}
	if err := s.cache.Set(ctx, Key(hostname, identity), b, ttl); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Get returns the stored snapshot. A missing snapshot is false, nil.
func (s *Store) Get(ctx context.Context, hostname, identity string) (*netdata.ParsedResult, bool, error) {
	b, err := s.cache.Get(ctx, Key(hostname, identity))
	if cachestore.IsMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result netdata.ParsedResult
	if err := s.codec.Unmarshal(b, &result); err != nil {
		return nil, false, fmt.Errorf("snapshot %s: %w", hostname, err)
	}
	return &result, true, nil
}
