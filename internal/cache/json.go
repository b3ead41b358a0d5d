package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SetJSON stores v JSON-encoded under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// GetJSON loads and decodes the value under key. An entry that no longer
// decodes is dropped and reported as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool, error) {
	raw, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		_ = c.Delete(ctx, key)
		return nil, false, nil
	}
	return &v, true, nil
}
