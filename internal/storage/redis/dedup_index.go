// Package redis provides Redis-backed storage implementations. Only the
// gate's dedup index lives here; TTL handling is delegated to Redis so
// multiple instances share one suppression window.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trade-autopilot/internal/storage"
)

// DedupIndex implements storage.DedupIndex on Redis strings. The value is
// "unix_milli|confidence"; expiry rides on the key TTL.
type DedupIndex struct {
	client *redis.Client
	prefix string
}

// NewDedupIndex creates a dedup index on an existing client.
func NewDedupIndex(client *redis.Client) *DedupIndex {
	return &DedupIndex{client: client, prefix: "dedup:"}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Compile-time interface check.
var _ storage.DedupIndex = (*DedupIndex)(nil)

// Last returns the recorded admission for key.
func (d *DedupIndex) Last(ctx context.Context, key string) (time.Time, int, error) {
	val, err := d.client.Get(ctx, d.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, 0, storage.ErrNotFound
		}
		return time.Time{}, 0, fmt.Errorf("dedup get: %w", err)
	}

	parts := strings.SplitN(val, "|", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, fmt.Errorf("dedup value malformed: %q", val)
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("dedup timestamp malformed: %q", val)
	}
	conf, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("dedup confidence malformed: %q", val)
	}
	return time.UnixMilli(ms), conf, nil
}

// Put records an admission for key with the given ttl.
func (d *DedupIndex) Put(ctx context.Context, key string, at time.Time, confidence int, ttl time.Duration) error {
	if key == "" || ttl <= 0 {
		return storage.ErrInvalidInput
	}

	val := fmt.Sprintf("%d|%d", at.UnixMilli(), confidence)
	if err := d.client.Set(ctx, d.prefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}
