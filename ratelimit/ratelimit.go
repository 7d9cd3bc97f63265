// Package ratelimit throttles PDF operations by name: a token bucket spaces
// out operation starts and a semaphore caps how many run at once.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/joeychilson/pdfworks/config"
)

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("limiter is closed")

// Resolver returns the throttle settings for an operation.
type Resolver func(operation string) config.ThrottleConfig

// Limiter manages throttling for multiple operations.
type Limiter struct {
	resolve  Resolver
	mu       sync.RWMutex
	limiters map[string]*operationLimiter
	stopCh   chan struct{}
	closed   bool
}

type operationLimiter struct {
	limiter    *rate.Limiter
	semaphore  chan struct{}
	lastAccess time.Time
	mu         sync.Mutex
}

// New creates a limiter that looks up per-operation settings with resolve.
func New(resolve Resolver) *Limiter {
	l := &Limiter{
		resolve:  resolve,
		limiters: make(map[string]*operationLimiter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupInactive()
	return l
}

// FromConfig creates a limiter driven by cfg's per-operation throttles.
func FromConfig(cfg *config.Config) *Limiter {
	return New(func(operation string) config.ThrottleConfig {
		return cfg.GetConfigForOperation(operation).Throttle
	})
}

// Wait blocks until operation may start. Every successful Wait must be
// paired with a Release.
func (l *Limiter) Wait(ctx context.Context, operation string) error {
	ol, err := l.getLimiterFor(operation)
	if err != nil {
		return err
	}
	if ol == nil {
		return nil
	}
	return ol.wait(ctx)
}

// Release frees the concurrency slot taken by Wait.
func (l *Limiter) Release(operation string) {
	l.mu.RLock()
	ol := l.limiters[operation]
	l.mu.RUnlock()

	if ol != nil {
		ol.release()
	}
}

// Do runs fn between Wait and Release.
func (l *Limiter) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if err := l.Wait(ctx, operation); err != nil {
		return err
	}
	defer l.Release(operation)
	return fn(ctx)
}

// InFlight returns the number of running instances of operation.
func (l *Limiter) InFlight(operation string) int {
	l.mu.RLock()
	ol := l.limiters[operation]
	l.mu.RUnlock()

	if ol == nil || ol.semaphore == nil {
		return 0
	}
	return len(ol.semaphore)
}

// getLimiterFor returns nil when the operation is not throttled.
func (l *Limiter) getLimiterFor(operation string) (*operationLimiter, error) {
	l.mu.RLock()
	ol, exists := l.limiters[operation]
	closed := l.closed
	l.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if exists {
		return ol, nil
	}

	cfg := l.resolve(operation)
	if !cfg.IsEnabled() {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if ol, exists = l.limiters[operation]; exists {
		return ol, nil
	}

	ol = newOperationLimiter(cfg)
	l.limiters[operation] = ol
	return ol, nil
}

// Close stops the cleanup goroutine. Later calls to Wait fail with ErrClosed.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.stopCh)
}

func newOperationLimiter(cfg config.ThrottleConfig) *operationLimiter {
	ol := &operationLimiter{
		lastAccess: time.Now(),
	}

	if delay := cfg.GetDelay(); delay > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		ol.limiter = rate.NewLimiter(rate.Every(delay), burst)
	}

	if maxConcurrent := cfg.GetMaxConcurrent(); maxConcurrent > 0 {
		ol.semaphore = make(chan struct{}, maxConcurrent)
	}

	return ol
}

func (ol *operationLimiter) wait(ctx context.Context) error {
	ol.mu.Lock()
	ol.lastAccess = time.Now()
	ol.mu.Unlock()

	if ol.semaphore != nil {
		select {
		case ol.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if ol.limiter != nil {
		if err := ol.limiter.Wait(ctx); err != nil {
			ol.release()
			return err
		}
	}

	return nil
}

func (ol *operationLimiter) release() {
	if ol.semaphore != nil {
		select {
		case <-ol.semaphore:
		default:
		}
	}
}

func (ol *operationLimiter) idle(now time.Time, after time.Duration) bool {
	ol.mu.Lock()
	defer ol.mu.Unlock()
	return now.Sub(ol.lastAccess) > after && len(ol.semaphore) == 0
}

// cleanupInactive drops limiters for operations that have not run recently
// so that configuration changes take effect.
func (l *Limiter) cleanupInactive() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for operation, ol := range l.limiters {
				if ol.idle(now, 30*time.Minute) {
					delete(l.limiters, operation)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}
