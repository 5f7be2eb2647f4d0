package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const resolveCacheTTL = 5 * time.Minute

// Store is the lookup contract the resolver needs.
type Store interface {
	GetByHost(ctx context.Context, host string) (Tenant, error)
}

// Resolver maps request hostnames to tenants, caching hits in Redis and
// collapsing concurrent lookups for the same host into one query.
type Resolver struct {
	store Store
	cache *redis.Client
	group singleflight.Group
}

// NewResolver constructs the resolver. The cache may be nil, in which case
// every resolve hits the store.
func NewResolver(store Store, cache *redis.Client) *Resolver {
	return &Resolver{store: store, cache: cache}
}

func cacheKey(host string) string {
	return "tenant:host:" + host
}

// Resolve returns the tenant for a hostname.
func (r *Resolver) Resolve(ctx context.Context, host string) (*shared.Tenant, error) {
	if host == "" {
		return nil, ErrNotFound
	}

	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, cacheKey(host)).Bytes(); err == nil {
			var t shared.Tenant
			if err := json.Unmarshal(raw, &t); err == nil {
				return &t, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, err
		}
	}

	v, err, _ := r.group.Do(host, func() (any, error) {
		rec, err := r.store.GetByHost(ctx, host)
		if err != nil {
			return nil, err
		}
		t := &shared.Tenant{ID: rec.ID, Name: rec.Name, Host: rec.Host, Schema: rec.Schema}
		if r.cache != nil {
			if raw, err := json.Marshal(t); err == nil {
				r.cache.Set(ctx, cacheKey(host), raw, resolveCacheTTL)
			}
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*shared.Tenant), nil
}

// Invalidate drops the cached entry for a host, used after registration
// changes.
func (r *Resolver) Invalidate(ctx context.Context, host string) {
	if r.cache != nil {
		r.cache.Del(ctx, cacheKey(host))
	}
}
