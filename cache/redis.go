package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// gzipMarker prefixes compressed values. Plain values start with '{'.
const gzipMarker = 'z'

// RedisCache is a Redis-based cache implementation.
type RedisCache struct {
	client *redis.Client
	config Config
}

// NewRedisCacheFromURL creates a new Redis cache from a Redis URL.
// URL format: redis://[user[:password]@]host[:port][/db][?option=value]
func NewRedisCacheFromURL(redisURL string, config Config) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisCacheWithClient(redis.NewClient(opts), config), nil
}

// NewRedisCacheWithClient creates a Redis cache with an existing client.
func NewRedisCacheWithClient(client *redis.Client, config Config) *RedisCache {
	return &RedisCache{
		client: client,
		config: applyDefaults(config),
	}
}

// Get retrieves an entry from Redis.
// Returns nil if the entry doesn't exist or has expired.
func (rc *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := rc.client.Get(ctx, rc.makeKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}

	if entry.IsExpired() {
		rc.client.Del(ctx, rc.makeKey(key))
		return nil, nil
	}
	return entry, nil
}

// Set stores an entry in Redis with its TTL as expiration.
func (rc *RedisCache) Set(ctx context.Context, entry *Entry) error {
	if rc.config.MaxEntrySize > 0 && entry.Size() > rc.config.MaxEntrySize {
		return ErrEntryTooLarge
	}
	if entry.TTL == 0 {
		entry.TTL = rc.config.TTL
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	data, err := encodeEntry(entry, rc.config.CompressThreshold)
	if err != nil {
		return err
	}

	if err := rc.client.Set(ctx, rc.makeKey(entry.Key), data, entry.TTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes an entry from Redis.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.makeKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Clear removes all entries with the configured prefix.
func (rc *RedisCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.config.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear failed: %w", err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Ping checks if Redis connection is healthy.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) makeKey(key string) string {
	return rc.config.Prefix + key
}

func encodeEntry(entry *Entry, threshold int) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	if threshold < 0 || len(data) <= threshold {
		return data, nil
	}

	var buf bytes.Buffer
	buf.WriteByte(gzipMarker)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress entry: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*Entry, error) {
	if len(data) > 0 && data[0] == gzipMarker {
		zr, err := gzip.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress entry: %w", err)
		}
		defer zr.Close()

		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress entry: %w", err)
		}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}
