package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
	"github.com/tinywideclouds/go-push-dispatch/store"
)

// CachedDeviceStore is a decorator adding read-aside caching to any
// DeviceStore. Writes go to the real store first, then invalidate the cache,
// so an unregistered device stops receiving notifications immediately.
type CachedDeviceStore struct {
	realStore store.DeviceStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedDeviceStore(realStore store.DeviceStore, cache CacheClient, ttl time.Duration) *CachedDeviceStore {
	return &CachedDeviceStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

func (s *CachedDeviceStore) Devices(ctx context.Context, userID string) ([]push.Device, error) {
	key := s.cacheKey(userID)

	var cached []push.Device
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Devices(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction: if Redis is down we
	// just serve from the real store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

func (s *CachedDeviceStore) Register(ctx context.Context, userID string, dev push.Device) error {
	if err := s.realStore.Register(ctx, userID, dev); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedDeviceStore) Unregister(ctx context.Context, userID string, identifier string) error {
	if err := s.realStore.Unregister(ctx, userID, identifier); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedDeviceStore) invalidate(ctx context.Context, userID string) error {
	return s.cache.Del(ctx, s.cacheKey(userID))
}

func (s *CachedDeviceStore) cacheKey(userID string) string {
	return fmt.Sprintf("push:devices:%s", userID)
}
