// Package retry wraps external-service calls with bounded exponential backoff
// triggered specifically by rate-limit signals. Any other failure is returned
// immediately: the policy draws a hard line between throttling, which is worth
// waiting out, and everything else, which is not.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrExhausted is returned once the attempt ceiling is hit while the service
// keeps throttling. Callers match it with errors.Is.
var ErrExhausted = errors.New("retries exhausted due to rate limiting")

// DefaultMaxAttempts and DefaultBaseDelay mirror the upstream API guidance:
// five tries starting at five seconds, doubling each time.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 5 * time.Second
)

// rateLimited is implemented by typed service errors that can report a
// throttling response directly (e.g. an HTTP 429).
type rateLimited interface {
	RateLimited() bool
}

// IsRateLimit reports whether err is a throttling signal: a typed error that
// says so, or a textual marker in the error chain.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rl rateLimited
	if errors.As(err, &rl) {
		return rl.RateLimited()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}

// Policy retries a call on rate-limit errors with exponential backoff and a
// small random jitter. The zero value is not usable; call New.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration

	// sleep is swappable so tests can observe waits without real delays.
	sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, when set, is invoked before each backoff sleep. Used to feed
	// metrics without this package knowing about them.
	OnRetry func(attempt int, wait time.Duration)
}

// New creates a Policy. Non-positive arguments fall back to the defaults.
func New(maxAttempts int, baseDelay time.Duration) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepCtx,
	}
}

// SetSleep replaces the sleep function. Tests only.
func (p *Policy) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}

// Do runs fn, retrying on rate-limit errors until the attempt ceiling.
// Non-rate-limit errors are returned unchanged on the first occurrence.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	var last error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRateLimit(err) {
			return err
		}
		last = err
		if attempt == p.maxAttempts-1 {
			break
		}

		wait := p.baseDelay*(1<<attempt) + time.Duration(rand.Int63n(int64(time.Second)))
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait)
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("after %d attempts (last: %v): %w", p.maxAttempts, last, ErrExhausted)
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, p *Policy, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
