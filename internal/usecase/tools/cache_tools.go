package tools

import (
	"context"

	"xiaoer/internal/usecase/fetchcache"
)

// RegisterCacheTools adds the tools backed by the cache-aside fetch layer.
func RegisterCacheTools(r *Registry, svc *fetchcache.Service) {
	type endpointInfoArgs struct {
		EndpointKey string `json:"endpoint_key"`
	}
	Register(r, "endpoint_info",
		"Return JSON for the configured endpoint key, cached with stale fallback",
		func(ctx context.Context, args endpointInfoArgs) (any, error) {
			return svc.Endpoint(ctx, args.EndpointKey)
		})

	type invalidateArgs struct {
		EndpointKey string `json:"endpoint_key"`
	}
	Register(r, "invalidate_endpoint",
		"Drop the cached payload for the configured endpoint key",
		func(ctx context.Context, args invalidateArgs) (any, error) {
			key := svc.KeyPrefix() + args.EndpointKey
			deleted, err := svc.Invalidate(ctx, key)
			if err != nil {
				return nil, err
			}
			return map[string]any{"invalidated": deleted, "key": key}, nil
		})

	type listKeysArgs struct {
		Prefix string `json:"prefix,omitempty"`
		Limit  int    `json:"limit,omitempty"`
	}
	Register(r, "list_cached_keys",
		"List cached keys by prefix (defaults to the endpoint prefix)",
		func(ctx context.Context, args listKeysArgs) (any, error) {
			prefix := args.Prefix
			if prefix == "" {
				prefix = svc.KeyPrefix()
			}
			limit := args.Limit
			if limit <= 0 || limit > 1000 {
				limit = 100
			}
			keys, err := svc.Keys(ctx, prefix, limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"prefix": prefix, "keys": keys}, nil
		})
}
