package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/guillermoBallester/rowtrail/internal/core/port"
)

// MetadataCache resolves and memoizes the ordered column list for a
// schema-qualified table. Entries are populated at most once per key
// (concurrent callers for the same table share one catalog query) and
// retained until Invalidate or, when a TTL is configured, until they
// expire. Lookups for unrelated keys never block each other.
type MetadataCache struct {
	q      port.Querier
	ttl    time.Duration // zero means entries never expire
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]metadataEntry
	group   singleflight.Group
}

type metadataEntry struct {
	columns []string
	fetched time.Time
}

func NewMetadataCache(q port.Querier, ttl time.Duration, logger *slog.Logger) *MetadataCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataCache{
		q:       q,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]metadataEntry),
	}
}

// Columns returns the table's column names in ordinal position order.
// On catalog query failure the error is logged and an empty list is
// returned; capture strategies must treat that as "cannot build a
// capture clause for this table".
func (c *MetadataCache) Columns(ctx context.Context, schema, table string) ([]string, error) {
	key := cacheKey(schema, table)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && !c.expired(entry) {
		return entry.columns, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have just filled it.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && !c.expired(entry) {
			return entry.columns, nil
		}

		cols, err := c.fetch(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		// An unqualified table resolved through a non-public search_path
		// entry misses the schema filter and yields no rows; such misses
		// are not cached so a later lookup can still succeed.
		if len(cols) > 0 {
			c.mu.Lock()
			c.entries[key] = metadataEntry{columns: cols, fetched: time.Now()}
			c.mu.Unlock()
		}
		return cols, nil
	})
	if err != nil {
		c.logger.Warn("column metadata lookup failed",
			slog.String("table", key),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return v.([]string), nil
}

// Invalidate drops the cached entry for a table, forcing a fresh catalog
// lookup on next use. Call it after DDL changes a table's shape.
func (c *MetadataCache) Invalidate(schema, table string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(schema, table))
	c.mu.Unlock()
}

func (c *MetadataCache) expired(e metadataEntry) bool {
	return c.ttl > 0 && time.Since(e.fetched) > c.ttl
}

func (c *MetadataCache) fetch(ctx context.Context, schema, table string) ([]string, error) {
	if schema == "" {
		schema = "public"
	}
	rows, err := c.q.Query(ctx, queryTableColumns, schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema.columns: %w", err)
	}
	cols := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["column_name"].(string); ok {
			cols = append(cols, name)
		}
	}
	return cols, nil
}

func cacheKey(schema, table string) string {
	if schema == "" {
		schema = "public"
	}
	return strings.ToLower(schema + "." + table)
}
