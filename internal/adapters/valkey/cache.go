package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/pkg/metrics"
)

const keyPrefix = "loadgen:run:"

// CounterTTL bounds how long shared run counters survive after the last write.
const CounterTTL = 48 * time.Hour

// CounterKey is the key holding a shared counter of a run.
func CounterKey(runID, name string) string { return keyPrefix + runID + ":counter:" + name }

// SummaryKey is the key holding the cached summary of a run.
func SummaryKey(runID string) string { return keyPrefix + runID + ":summary" }

// Cache implements ports.RunCoordinator using Valkey (Redis-compatible).
type Cache struct {
	client valkey.Client
}

// New creates a new Valkey cache client.
func New(addr string) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Cache{client: client}, nil
}

// IncrCounter adds delta to a counter shared by all generators of a run and
// returns the new total.
func (c *Cache) IncrCounter(ctx context.Context, runID, name string, delta int64) (int64, error) {
	key := CounterKey(runID, name)
	cmds := valkey.Commands{
		c.client.B().Incrby().Key(key).Increment(delta).Build(),
		c.client.B().Expire().Key(key).Seconds(int64(CounterTTL.Seconds())).Build(),
	}
	resps := c.client.DoMulti(ctx, cmds...)
	if err := resps[1].Error(); err != nil {
		return 0, err
	}
	return resps[0].AsInt64()
}

// CacheSummary stores a finished run summary.
func (c *Cache) CacheSummary(ctx context.Context, summary *domain.RunSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	cmd := c.client.Do(ctx,
		c.client.B().Set().Key(SummaryKey(summary.RunID)).Value(string(data)).Ex(ttl).Build(),
	)
	return cmd.Error()
}

// CachedSummary returns the cached summary of a run, or nil on a miss.
func (c *Cache) CachedSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(SummaryKey(runID)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		metrics.CacheMisses.WithLabelValues("summary").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.CacheHits.WithLabelValues("summary").Inc()

	var summary domain.RunSummary
	if err := json.Unmarshal(b, &summary); err != nil {
		return nil, fmt.Errorf("decode cached summary %s: %w", runID, err)
	}
	return &summary, nil
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (c *Cache) Close() {
	c.client.Close()
}
