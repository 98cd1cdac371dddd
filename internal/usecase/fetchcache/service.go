package fetchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/domain/fetch"
	"xiaoer/internal/errs"
	"xiaoer/internal/ports"
)

// Defaults are the plain-value knobs of the fetch layer. Inputs may
// override any of them per call.
type Defaults struct {
	TTL                 time.Duration
	Timeout             time.Duration
	AllowStaleOnTimeout bool
	KeyPrefix           string
}

// Service fronts an unreliable remote JSON source with the key-value
// store. Fresh hits short-circuit, misses fetch under a deadline, and a
// failed fetch falls back to whatever the store still holds for the key,
// stale included. Concurrent misses on one key collapse into a single
// upstream fetch.
type Service struct {
	cache    ports.Cache
	source   ports.RemoteSource
	catalog  *Catalog
	defaults Defaults

	sf singleflight.Group
}

func NewService(cache ports.Cache, source ports.RemoteSource, catalog *Catalog, defaults Defaults) *Service {
	return &Service{
		cache:    cache,
		source:   source,
		catalog:  catalog,
		defaults: defaults,
	}
}

type FetchInput struct {
	Key     string
	URL     string
	TTL     time.Duration // <= 0 falls back to the default TTL
	Timeout time.Duration // <= 0 falls back to the default timeout
	// AllowStale overrides the stale-on-timeout toggle; nil keeps the
	// configured default.
	AllowStale *bool
}

type FetchOutput struct {
	Value    json.RawMessage `json:"value"`
	CacheHit bool            `json:"cache_hit"`
	Stale    bool            `json:"stale"`
}

// Get reads the store without side effects. Decoding is lenient: a cached
// payload that is not valid JSON comes back as its raw string.
func (s *Service) Get(ctx context.Context, key string) (any, bool, error) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, false, storeError(err)
	}
	if !found {
		return nil, false, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw, true, nil
	}
	return decoded, true, nil
}

// Set encodes and writes value with an expiry ttl from now (default TTL
// when ttl <= 0).
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(err, "encode cache value")
	}
	if ttl <= 0 {
		ttl = s.defaults.TTL
	}
	if err := s.cache.Set(ctx, key, string(raw), ttl); err != nil {
		return storeError(err)
	}
	return nil
}

// Invalidate deletes the entry and reports whether anything was removed.
func (s *Service) Invalidate(ctx context.Context, key string) (bool, error) {
	deleted, err := s.cache.Delete(ctx, key)
	if err != nil {
		return false, storeError(err)
	}
	return deleted, nil
}

func (s *Service) Keys(ctx context.Context, prefix string, limit int) ([]string, error) {
	keys, err := s.cache.Keys(ctx, prefix, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return keys, nil
}

func (s *Service) KeyPrefix() string {
	return s.defaults.KeyPrefix
}

// GetOrFetchAndCache implements the cache-aside policy:
//
//  1. fresh cache entry -> return it, no remote call
//  2. miss -> fetch bounded by the timeout (deduplicated per key)
//  3. success -> write through with the ttl, return the payload
//  4. timeout or any other fetch failure -> if stale fallback is allowed,
//     re-read the store ignoring expiry and serve what is there; otherwise
//     the fetch error propagates, tagged terminal when nothing cached
//     remains.
//
// Store failures always propagate as fetch.ErrCacheUnavailable; they are
// never traded for degraded data.
func (s *Service) GetOrFetchAndCache(ctx context.Context, input FetchInput) (FetchOutput, error) {
	if ctx == nil {
		return FetchOutput{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return FetchOutput{}, errs.Wrap(err, "check context")
	}

	key := strings.TrimSpace(input.Key)
	if key == "" {
		return FetchOutput{}, errors.New("cache key is required")
	}
	if strings.TrimSpace(input.URL) == "" {
		return FetchOutput{}, errors.New("source url is required")
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.defaults.TTL
	}
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = s.defaults.Timeout
	}
	allowStale := s.defaults.AllowStaleOnTimeout
	if input.AllowStale != nil {
		allowStale = *input.AllowStale
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.fetchcache"),
		slog.String("cache_key", key),
	)

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return FetchOutput{}, storeError(err)
	}
	if found {
		logging.Debug(logCtx, "cache hit")
		return FetchOutput{Value: json.RawMessage(cached), CacheHit: true}, nil
	}

	logging.Debug(logCtx, "cache miss, fetching", slog.String("url", input.URL))

	raw, fetchErr := s.fetchOnce(ctx, key, input.URL, timeout, ttl)
	if fetchErr == nil {
		return FetchOutput{Value: raw}, nil
	}
	if errors.Is(fetchErr, fetch.ErrCacheUnavailable) {
		return FetchOutput{}, fetchErr
	}

	if errors.Is(fetchErr, fetch.ErrFetchTimeout) {
		logging.Warn(logCtx, "fetch timed out", slog.Any("err", errs.Loggable(fetchErr)))
	} else {
		logging.Warn(logCtx, "fetch failed", slog.Any("err", errs.Loggable(fetchErr)))
	}

	// Timeouts and generic failures degrade identically: any retained
	// value beats no value while the source is unhealthy. The second
	// read also catches keys a concurrent writer populated mid-flight.
	if allowStale {
		stale, staleFound, staleErr := s.cache.GetStale(ctx, key)
		if staleErr != nil {
			return FetchOutput{}, storeError(staleErr)
		}
		if staleFound {
			logging.Info(logCtx, "serving stale cache after fetch failure")
			return FetchOutput{Value: json.RawMessage(stale), Stale: true}, nil
		}
		return FetchOutput{}, fmt.Errorf("%w: %w", fetch.ErrNoFallbackAvailable, fetchErr)
	}

	return FetchOutput{}, fetchErr
}

// fetchOnce collapses concurrent fetches of the same key into one remote
// call and one cache write; waiters share the outcome.
func (s *Service) fetchOnce(ctx context.Context, key string, url string, timeout time.Duration, ttl time.Duration) (json.RawMessage, error) {
	value, err, _ := s.sf.Do(key, func() (any, error) {
		raw, err := s.source.Fetch(ctx, url, timeout)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, string(raw), ttl); err != nil {
			return nil, storeError(err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(json.RawMessage), nil
}

type EndpointResult struct {
	Endpoint string          `json:"endpoint"`
	CacheHit bool            `json:"cache_hit"`
	Stale    bool            `json:"stale"`
	Data     json.RawMessage `json:"data"`
}

// Endpoint resolves a configured endpoint key through the catalog and runs
// the cache-aside fetch for it.
func (s *Service) Endpoint(ctx context.Context, endpointKey string) (EndpointResult, error) {
	if s.catalog == nil {
		return EndpointResult{}, ErrUnknownEndpoint
	}

	entry, ok := s.catalog.Lookup(endpointKey)
	if !ok {
		return EndpointResult{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpointKey)
	}

	output, err := s.GetOrFetchAndCache(ctx, FetchInput{
		Key: s.defaults.KeyPrefix + endpointKey,
		URL: entry.URL,
		TTL: time.Duration(entry.TTLSeconds) * time.Second,
	})
	if err != nil {
		return EndpointResult{}, errs.Wrapf(err, "resolve endpoint %q", endpointKey)
	}

	return EndpointResult{
		Endpoint: endpointKey,
		CacheHit: output.CacheHit,
		Stale:    output.Stale,
		Data:     output.Value,
	}, nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", fetch.ErrCacheUnavailable, err)
}
