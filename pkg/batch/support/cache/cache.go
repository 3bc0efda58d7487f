// Package cache provides a time-boxed result cache keyed by a deterministic hash of call inputs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Cache stores opaque values with a time-to-live.
type Cache interface {
	// Get returns the cached value and true, or false when the key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key hashes the JSON encoding of parts with SHA-256. Map keys are sorted by encoding/json,
// so equal inputs always produce the same key.
func Key(parts ...any) (string, error) {
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key parts: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Memoize returns the cached result for key when present, otherwise calls fn and caches its result.
// Errors from fn are never cached. Cache failures are logged and fall through to fn.
func Memoize[T any](ctx context.Context, c Cache, ttl time.Duration, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || ttl <= 0 {
		return fn(ctx)
	}

	if data, ok, err := c.Get(ctx, key); err != nil {
		logger.Warnf("Cache lookup failed for key %s: %v", shortKey(key), err)
	} else if ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			logger.Debugf("Cache hit for key %s.", shortKey(key))
			return cached, nil
		}
		logger.Warnf("Discarding undecodable cache entry %s.", shortKey(key))
	}

	result, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnf("Result for key %s is not cacheable: %v", shortKey(key), err)
		return result, nil
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		logger.Warnf("Cache store failed for key %s: %v", shortKey(key), err)
	}
	return result, nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
