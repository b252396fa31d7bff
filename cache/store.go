// Package cache implements the two-tier result cache: a fast remote primary
// (Redis) with a transparent in-process secondary fallback.
package cache

import (
	"context"
	"time"
)

// Store is the byte-oriented contract both tiers implement.
type Store interface {
	// Get returns the stored value and whether the key was present. A missing
	// or expired key is (nil, false, nil); only infrastructure failures
	// produce an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
