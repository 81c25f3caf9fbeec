// Package cache memoizes successful connection resolutions in a
// hash-per-key store with per-key expiry.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/logging"
)

// KV is a store of string hashes with optional expiry.
//
// SetAll merges fields into the hash and keeps any existing expiry. Expire
// on an absent key is a no-op. GetAll returns an empty map for absent or
// expired keys.
type KV interface {
	GetAll(ctx context.Context, key string) (map[string]string, error)
	SetAll(ctx context.Context, key string, fields map[string]string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open creates the KV backend selected by cfg.Backend.
func Open(cfg config.CacheConfig, paths config.Paths, log *logging.Logger) (KV, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryKV(cfg.MaxEntries)
	case "badger":
		return OpenBadger(paths.CachePath(cfg), log)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func copyFields(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
