package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cache stores raw generated answers keyed by question.
type Cache interface {
	// Get returns the cached value and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Purge drops every entry written through this cache.
	Purge(ctx context.Context) error
}

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures a cache backend.
type Config struct {
	Backend string
	URL     string
	TTL     time.Duration
	Prefix  string
}

// New builds the configured backend. An empty backend means no caching.
func New(ctx context.Context, cfg Config) (Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "candidatos:answer:"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return None{}, nil
	case BackendMemory:
		return NewMemory(cfg.TTL), nil
	case BackendRedis:
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// Key derives a cache key from the normalized question, the collection, the
// collection's generation and the candidate list. A rebuilt collection or a
// registry change never serves a stale comparison.
func Key(question, collection, generation string, candidates []string) string {
	q := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	h := sha256.New()
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(generation))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(candidates, ",")))
	h.Write([]byte{0})
	h.Write([]byte(q))
	return hex.EncodeToString(h.Sum(nil))
}

// None never stores anything.
type None struct{}

func (None) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (None) Set(context.Context, string, string) error         { return nil }
func (None) Purge(context.Context) error                       { return nil }
