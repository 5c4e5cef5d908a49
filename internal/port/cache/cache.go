// Package cache defines the port interface for the decision cache.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. The decision
// pipeline keys entries by applicant fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
