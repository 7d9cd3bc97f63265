package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	a, b := []byte("first"), []byte("second")

	base := Key("merge", [][]byte{a, b})
	assert.Equal(t, base, Key("merge", [][]byte{a, b}), "key should be deterministic")
	assert.Contains(t, base, "merge:")

	tests := []struct {
		name  string
		other string
	}{
		{"input order", Key("merge", [][]byte{b, a})},
		{"operation", Key("compress", [][]byte{a, b})},
		{"params", Key("merge", [][]byte{a, b}, "x")},
		{"input boundary", Key("merge", [][]byte{[]byte("firsts"), []byte("econd")})},
		{"param moved into input", Key("merge", [][]byte{a}, "second")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.other)
		})
	}
}

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"fresh", Entry{StoredAt: time.Now(), TTL: time.Minute}, false},
		{"expired", Entry{StoredAt: time.Now().Add(-2 * time.Minute), TTL: time.Minute}, true},
		{"no ttl", Entry{StoredAt: time.Now().Add(-24 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	got := applyDefaults(Config{Prefix: "custom:", CompressThreshold: -1})
	assert.Equal(t, "custom:", got.Prefix)
	assert.Equal(t, time.Hour, got.TTL)
	assert.Equal(t, time.Minute, got.CleanupInterval)
	assert.Equal(t, -1, got.CompressThreshold)
}
