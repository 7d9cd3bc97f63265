package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/ratelimit"
)

func fastConfig(maxRetries int) config.RetryConfig {
	return config.RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

// TestCalculateBackoffExponentialGrowth verifies delays grow exponentially.
func TestCalculateBackoffExponentialGrowth(t *testing.T) {
	r := New(nil, config.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
	})

	delay0 := r.calculateBackoff(0)
	delay1 := r.calculateBackoff(1)
	delay2 := r.calculateBackoff(2)

	assert.Greater(t, delay1, delay0/2, "delay1 should be significantly larger than delay0")
	assert.Greater(t, delay2, delay1/2, "delay2 should be significantly larger than delay1")
}

// TestCalculateBackoffMaxDelay verifies delays don't exceed MaxDelay.
func TestCalculateBackoffMaxDelay(t *testing.T) {
	cfg := config.RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   10.0,
	}
	r := New(nil, cfg)

	for attempt := 0; attempt < 20; attempt++ {
		delay := r.calculateBackoff(attempt)
		maxAllowed := float64(cfg.GetMaxDelay()) * (1 + jitterPercent)
		assert.LessOrEqual(t, float64(delay), maxAllowed,
			"delay for attempt %d should not exceed MaxDelay + jitter", attempt)
	}
}

func TestAddJitter(t *testing.T) {
	assert.Equal(t, time.Duration(0), addJitter(0))

	base := 100 * time.Millisecond
	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		d := addJitter(base)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1, "jitter should vary delays")
}

func TestDo(t *testing.T) {
	transient := errors.New("transient")

	tests := []struct {
		name         string
		maxRetries   int
		failures     int
		wantErr      bool
		wantAttempts int32
	}{
		{"success first try", 3, 0, false, 1},
		{"success after failures", 3, 2, false, 3},
		{"exhausts retries", 2, 10, true, 3},
		{"no retries configured", 0, 10, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil, fastConfig(tt.maxRetries))

			var attempts atomic.Int32
			err := r.Do(context.Background(), config.OpMerge, func(context.Context) error {
				if int(attempts.Add(1)) <= tt.failures {
					return transient
				}
				return nil
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, transient))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestDo_NoRetriesReturnsBareError(t *testing.T) {
	boom := errors.New("boom")
	err := New(nil, fastConfig(0)).Do(context.Background(), config.OpInfo, func(context.Context) error {
		return boom
	})
	assert.Equal(t, boom, err)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	r := New(nil, fastConfig(5))
	invalid := errors.New("invalid pdf")

	var attempts int
	err := r.Do(context.Background(), config.OpCompress, func(context.Context) error {
		attempts++
		return Permanent(invalid)
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, invalid, err)
	assert.False(t, IsPermanent(err))
	assert.True(t, IsPermanent(Permanent(invalid)))
	assert.Nil(t, Permanent(nil))
}

func TestDo_ContextCancelled(t *testing.T) {
	r := New(nil, config.RetryConfig{MaxRetries: 5, InitialDelay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Do(ctx, config.OpSplit, func(context.Context) error {
		return errors.New("keeps failing")
	})

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_HoldsThrottleSlot(t *testing.T) {
	limiter := ratelimit.New(func(string) config.ThrottleConfig {
		return config.ThrottleConfig{MaxConcurrent: 1}
	})
	defer limiter.Close()

	r := New(limiter, fastConfig(1))

	var inFlight int
	err := r.Do(context.Background(), config.OpToImages, func(context.Context) error {
		inFlight = limiter.InFlight(config.OpToImages)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inFlight)
	assert.Equal(t, 0, limiter.InFlight(config.OpToImages))
}

func TestDo_ClosedLimiter(t *testing.T) {
	limiter := ratelimit.New(func(string) config.ThrottleConfig { return config.ThrottleConfig{} })
	limiter.Close()

	var called bool
	err := New(limiter, fastConfig(3)).Do(context.Background(), config.OpMerge, func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ratelimit.ErrClosed))
	assert.False(t, called)
}
