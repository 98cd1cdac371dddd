package ports

import (
	"context"
	"time"
)

// Cache defines the TTL key-value capability behind the fetch layer.
//
// Expiry is advisory: adapters keep expired rows until they are overwritten
// or deleted. Get treats an expired row as a miss; GetStale reads it anyway,
// which is what makes the stale-fallback path real after the nominal TTL.
// Adapters must provide atomic per-key access; overlapping Set calls on the
// same key resolve last-writer-wins.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	GetStale(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (deleted bool, err error)
	Keys(ctx context.Context, prefix string, limit int) ([]string, error)
}
