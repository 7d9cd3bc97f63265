// Package cache stores the results of PDF operations keyed by a digest of
// their inputs and parameters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"
)

// ErrEntryTooLarge is returned by Set when an entry exceeds Config.MaxEntrySize.
var ErrEntryTooLarge = errors.New("cache entry too large")

// File is one named output of a multi-file result.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Entry is a cached operation result.
type Entry struct {
	Key         string            `json:"key"`
	ContentType string            `json:"contentType"`
	Filename    string            `json:"filename,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Files       []File            `json:"files,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	StoredAt    time.Time         `json:"storedAt"`
	TTL         time.Duration     `json:"ttl"`
}

// IsExpired reports whether the entry has outlived its TTL.
func (e *Entry) IsExpired() bool {
	return e.TTL > 0 && time.Since(e.StoredAt) >= e.TTL
}

// Size returns the number of payload bytes held by the entry.
func (e *Entry) Size() int {
	n := len(e.Body)
	for _, f := range e.Files {
		n += len(f.Data)
	}
	return n
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Body = append([]byte(nil), e.Body...)
	if e.Files != nil {
		c.Files = make([]File, len(e.Files))
		for i, f := range e.Files {
			f.Data = append([]byte(nil), f.Data...)
			c.Files[i] = f
		}
	}
	if e.Meta != nil {
		c.Meta = make(map[string]string, len(e.Meta))
		for k, v := range e.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// Cache is implemented by MemoryCache and RedisCache. Get returns nil, nil
// on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Config holds cache configuration.
type Config struct {
	Prefix          string
	TTL             time.Duration
	CleanupInterval time.Duration
	// MaxEntrySize is the largest payload stored. Zero means no limit.
	MaxEntrySize int
	// CompressThreshold is the encoded size above which Redis entries are
	// gzipped. Negative disables compression.
	CompressThreshold int
}

// DefaultConfig returns a cache config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:            "pdfworks:",
		TTL:               time.Hour,
		CleanupInterval:   time.Minute,
		MaxEntrySize:      20 * 1024 * 1024,
		CompressThreshold: 1024,
	}
}

func applyDefaults(config Config) Config {
	defaults := DefaultConfig()

	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.TTL == 0 {
		config.TTL = defaults.TTL
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.CompressThreshold == 0 {
		config.CompressThreshold = defaults.CompressThreshold
	}
	return config
}

// Key derives a cache key from an operation name, its input documents and
// its parameters. Inputs and parameters are length-prefixed so that
// different splits of the same bytes never collide.
func Key(operation string, inputs [][]byte, params ...string) string {
	h := sha256.New()

	var n [8]byte
	write := func(b []byte) {
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}

	write([]byte(operation))
	binary.BigEndian.PutUint64(n[:], uint64(len(inputs)))
	h.Write(n[:])
	for _, in := range inputs {
		write(in)
	}
	for _, p := range params {
		write([]byte(p))
	}

	return operation + ":" + hex.EncodeToString(h.Sum(nil))
}
