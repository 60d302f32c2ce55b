package cache

import (
	"context"
	"time"
)

// BytesCache is a best-effort byte store. Callers must tolerate misses and
// errors; nothing in the core depends on the cache being present.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
