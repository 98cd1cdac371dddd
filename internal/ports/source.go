package ports

import (
	"context"
	"encoding/json"
	"time"
)

// RemoteSource fetches a JSON payload from an address, bounded by timeout.
// Implementations must fail with fetch.ErrFetchTimeout when the deadline is
// exceeded and fetch.ErrFetchFailed for status/parse/connection errors, and
// must never block past the timeout.
type RemoteSource interface {
	Fetch(ctx context.Context, address string, timeout time.Duration) (json.RawMessage, error)
}
