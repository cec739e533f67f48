package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process cache with per-entry expiry.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory creates a cache whose entries expire after ttl; expired entries are
// swept every ttl/2.
func NewMemory(ttl time.Duration) *Memory {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &Memory{cache: gocache.New(ttl, cleanup)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if x, found := m.cache.Get(key); found {
		s, ok := x.(string)
		return s, ok, nil
	}
	return "", false, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.cache.Set(key, value, gocache.DefaultExpiration)
	return nil
}

func (m *Memory) Purge(context.Context) error {
	m.cache.Flush()
	return nil
}
