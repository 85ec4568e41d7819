package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	gateVerdictPrefix = "gate:ok:"
	// GateVerdictTTL bounds how long an accepted credential skips
	// re-verification. Rotating the secret takes effect within this window.
	GateVerdictTTL = 5 * time.Minute
)

// HasGateVerdict reports whether fingerprint was recently accepted.
// Only accepted credentials are cached; a miss means "verify again".
func (c *Cache) HasGateVerdict(ctx context.Context, fingerprint string) (bool, error) {
	err := c.client.Get(ctx, c.key(gateVerdictPrefix, fingerprint)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

// SetGateVerdict records that fingerprint passed the gate.
func (c *Cache) SetGateVerdict(ctx context.Context, fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = GateVerdictTTL
	}
	return c.client.Set(ctx, c.key(gateVerdictPrefix, fingerprint), "1", ttl).Err()
}

// DeleteGateVerdict drops a cached verdict.
func (c *Cache) DeleteGateVerdict(ctx context.Context, fingerprint string) error {
	return c.client.Del(ctx, c.key(gateVerdictPrefix, fingerprint)).Err()
}
