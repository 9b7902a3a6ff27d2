package balloon

import (
	"context"
	"time"
)

// FeedSource retrieves one hour's raw snapshot from the constellation feed.
// The returned entries have already been sanitized.
type FeedSource interface {
	FetchHour(ctx context.Context, hour int) ([]any, error)
}

// WindSource queries the wind enrichment API for a batch of coordinates and
// returns one series per coordinate, in request order.
type WindSource interface {
	FetchWind(ctx context.Context, coords []Coordinate) ([]WindSeries, error)
}

// Cache is the contract for the key-value store holding the aggregate.
// Set replaces the value for key atomically.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type idleCloser interface {
	CloseIdleConnections()
}
