package fetchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"testing"

	"xiaoer/internal/domain/fetch"
)

type fakeEntry struct {
	value   string
	expired bool
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]fakeEntry

	getErr   error
	setErr   error
	staleErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]fakeEntry)}
}

func (c *fakeCache) seed(key string, value string, expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = fakeEntry{value: value, expired: expired}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	entry, ok := c.entries[key]
	if !ok || entry.expired {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *fakeCache) GetStale(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleErr != nil {
		return "", false, c.staleErr
	}
	entry, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = fakeEntry{value: value}
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func (c *fakeCache) Keys(_ context.Context, prefix string, limit int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fetch func() (json.RawMessage, error)
}

func (s *fakeSource) Fetch(_ context.Context, _ string, _ time.Duration) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls++
	fetchFn := s.fetch
	s.mu.Unlock()
	return fetchFn()
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testDefaults() Defaults {
	return Defaults{
		TTL:                 5 * time.Minute,
		Timeout:             time.Second,
		AllowStaleOnTimeout: true,
		KeyPrefix:           "ep:",
	}
}

func newTestService(cache *fakeCache, source *fakeSource) *Service {
	return NewService(cache, source, NewCatalog(nil), testDefaults())
}

func TestCacheHitShortCircuitsFetch(t *testing.T) {
	cache := newFakeCache()
	cache.seed("ep:orders", `{"v":1}`, false)
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return json.RawMessage(`{"v":2}`), nil
	}}
	svc := newTestService(cache, source)

	output, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{Key: "ep:orders", URL: "http://src/orders"})
	if err != nil {
		t.Fatalf("get or fetch: %v", err)
	}
	if !output.CacheHit || output.Stale {
		t.Fatalf("unexpected flags: %+v", output)
	}
	if string(output.Value) != `{"v":1}` {
		t.Fatalf("unexpected value %s", output.Value)
	}
	if source.callCount() != 0 {
		t.Fatalf("remote source was called %d times on a fresh hit", source.callCount())
	}
}

func TestMissFetchesAndPopulates(t *testing.T) {
	cache := newFakeCache()
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return json.RawMessage(`{"v":1}`), nil
	}}
	svc := newTestService(cache, source)

	output, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{Key: "ep:orders", URL: "http://src/orders"})
	if err != nil {
		t.Fatalf("get or fetch: %v", err)
	}
	if output.CacheHit || output.Stale {
		t.Fatalf("unexpected flags: %+v", output)
	}
	if string(output.Value) != `{"v":1}` {
		t.Fatalf("unexpected value %s", output.Value)
	}

	decoded, found, err := svc.Get(context.Background(), "ep:orders")
	if err != nil || !found {
		t.Fatalf("get after populate: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(decoded, map[string]any{"v": float64(1)}) {
		t.Fatalf("cached value decoded to %#v", decoded)
	}
}

func TestStaleFallbackOnTimeout(t *testing.T) {
	cache := newFakeCache()
	cache.seed("ep:mail", `{"v":"old"}`, true)
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: deadline exceeded", fetch.ErrFetchTimeout)
	}}
	svc := newTestService(cache, source)

	output, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{Key: "ep:mail", URL: "http://src/mail"})
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !output.Stale || output.CacheHit {
		t.Fatalf("unexpected flags: %+v", output)
	}
	if string(output.Value) != `{"v":"old"}` {
		t.Fatalf("unexpected value %s", output.Value)
	}
}

func TestStaleFallbackOnGenericFailure(t *testing.T) {
	cache := newFakeCache()
	cache.seed("ep:mail", `{"v":"old"}`, true)
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: status 502", fetch.ErrFetchFailed)
	}}
	svc := newTestService(cache, source)

	output, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{Key: "ep:mail", URL: "http://src/mail"})
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !output.Stale {
		t.Fatalf("result not flagged stale: %+v", output)
	}
}

func TestNoFallbackPropagatesTimeout(t *testing.T) {
	cache := newFakeCache()
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: deadline exceeded", fetch.ErrFetchTimeout)
	}}
	svc := newTestService(cache, source)

	_, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{Key: "ep:mail", URL: "http://src/mail"})
	if !errors.Is(err, fetch.ErrFetchTimeout) {
		t.Fatalf("expected timeout in chain, got %v", err)
	}
	if !errors.Is(err, fetch.ErrNoFallbackAvailable) {
		t.Fatalf("expected terminal no-fallback error, got %v", err)
	}
}

func TestDisabledStaleFallbackPropagates(t *testing.T) {
	cache := newFakeCache()
	cache.seed("ep:mail", `{"v":"old"}`, true)
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: status 500", fetch.ErrFetchFailed)
	}}
	svc := newTestService(cache, source)

	allowStale := false
	_, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{
		Key:        "ep:mail",
		URL:        "http://src/mail",
		AllowStale: &allowStale,
	})
	if !errors.Is(err, fetch.ErrFetchFailed) {
		t.Fatalf("expected fetch failure, got %v", err)
	}
	if errors.Is(err, fetch.ErrNoFallbackAvailable) {
		t.Fatalf("disabled fallback should propagate the raw fetch error, got %v", err)
	}
}

func TestStoreReadFailureAlwaysPropagates(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("disk on fire")
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	svc := newTestService(cache, source)

	_, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{Key: "ep:mail", URL: "http://src/mail"})
	if !errors.Is(err, fetch.ErrCacheUnavailable) {
		t.Fatalf("expected cache unavailable, got %v", err)
	}
	if source.callCount() != 0 {
		t.Fatal("remote source called despite store failure")
	}
}

func TestStoreWriteFailurePropagates(t *testing.T) {
	cache := newFakeCache()
	cache.setErr = errors.New("read-only store")
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return json.RawMessage(`{"v":1}`), nil
	}}
	svc := newTestService(cache, source)

	_, err := svc.GetOrFetchAndCache(context.Background(), FetchInput{Key: "ep:mail", URL: "http://src/mail"})
	if !errors.Is(err, fetch.ErrCacheUnavailable) {
		t.Fatalf("expected cache unavailable, got %v", err)
	}
}

func TestConcurrentMissesCollapseIntoOneFetch(t *testing.T) {
	cache := newFakeCache()
	release := make(chan struct{})
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		<-release
		return json.RawMessage(`{"v":1}`), nil
	}}
	svc := newTestService(cache, source)

	const waiters = 5
	var wg sync.WaitGroup
	outputs := make([]FetchOutput, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			outputs[idx], errs[idx] = svc.GetOrFetchAndCache(context.Background(), FetchInput{
				Key: "ep:orders",
				URL: "http://src/orders",
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d: %v", i, errs[i])
		}
		if string(outputs[i].Value) != `{"v":1}` {
			t.Fatalf("waiter %d got %s", i, outputs[i].Value)
		}
	}
	if got := source.callCount(); got != 1 {
		t.Fatalf("source called %d times, want 1", got)
	}
}

func TestGetDecodesLeniently(t *testing.T) {
	cache := newFakeCache()
	cache.seed("ep:junk", "not-json{", false)
	svc := newTestService(cache, &fakeSource{fetch: func() (json.RawMessage, error) { return nil, nil }})

	value, found, err := svc.Get(context.Background(), "ep:junk")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if value != "not-json{" {
		t.Fatalf("lenient decode returned %#v", value)
	}
}

func TestInvalidateReportsRemoval(t *testing.T) {
	cache := newFakeCache()
	cache.seed("ep:orders", `{}`, false)
	svc := newTestService(cache, &fakeSource{fetch: func() (json.RawMessage, error) { return nil, nil }})

	deleted, err := svc.Invalidate(context.Background(), "ep:orders")
	if err != nil || !deleted {
		t.Fatalf("invalidate: deleted=%v err=%v", deleted, err)
	}

	deleted, err = svc.Invalidate(context.Background(), "ep:orders")
	if err != nil || deleted {
		t.Fatalf("second invalidate: deleted=%v err=%v", deleted, err)
	}
}

func TestEndpointUsesCatalogAndPrefix(t *testing.T) {
	cache := newFakeCache()
	source := &fakeSource{fetch: func() (json.RawMessage, error) {
		return json.RawMessage(`{"events":[]}`), nil
	}}
	catalog := NewCatalog(map[string]CatalogEndpoint{
		"calendar": {URL: "http://src/calendar", TTLSeconds: 60},
	})
	svc := NewService(cache, source, catalog, testDefaults())

	result, err := svc.Endpoint(context.Background(), "calendar")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if result.Endpoint != "calendar" || string(result.Data) != `{"events":[]}` {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, found, _ := cache.Get(context.Background(), "ep:calendar"); !found {
		t.Fatal("endpoint payload not cached under prefixed key")
	}

	if _, err := svc.Endpoint(context.Background(), "nope"); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("expected unknown endpoint, got %v", err)
	}
}
