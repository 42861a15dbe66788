// Package ratelimit implements the fixed-window per-key rate limiter
// (spec section 4.I). It is applied to outbound gateway SendMessage and
// SendTyping calls through gateway.RateLimited; LLM and embedding calls
// do not pass through it. Grounded on the teacher's
// whatsapp.RateLimiter shape, moved from in-process memory to the shared
// KV port since the window must be shared across worker processes.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/wa-agent/backend/internal/ports"
)

const (
	windowSize  = 60 * time.Second
	keyTTLSlack = 60 * time.Second
)

// Result is the outcome of a CheckLimit call.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces a fixed-window request cap per (operation, apiKey).
type Limiter struct {
	kv        ports.KV
	perWindow int64
	failOpen  bool
}

// New constructs a Limiter. failOpen mirrors spec section 7: a KV error
// should not block the caller by default, but is toggleable.
func New(kv ports.KV, requestsPerWindow int64, failOpen bool) *Limiter {
	return &Limiter{kv: kv, perWindow: requestsPerWindow, failOpen: failOpen}
}

func windowKey(operation, apiKey string, windowStart int64) string {
	sum := sha256.Sum256([]byte(apiKey))
	hash := hex.EncodeToString(sum[:])
	return fmt.Sprintf("rate_limit:%s:%s:%d", operation, hash, windowStart)
}

func currentWindowStart(now time.Time) int64 {
	return now.Unix() / int64(windowSize.Seconds()) * int64(windowSize.Seconds())
}

// CheckLimit reports whether a new request for (operation, apiKey) is
// allowed under the current window, without consuming a slot.
func (l *Limiter) CheckLimit(ctx context.Context, operation, apiKey string, now time.Time) (Result, error) {
	windowStart := currentWindowStart(now)
	key := windowKey(operation, apiKey, windowStart)

	raw, exists, err := l.kv.Get(ctx, key)
	if err != nil {
		if l.failOpen {
			return Result{Allowed: true}, nil
		}
		return Result{}, err
	}
	if !exists {
		return Result{Allowed: true}, nil
	}

	var count int64
	fmt.Sscanf(raw, "%d", &count)
	if count < l.perWindow {
		return Result{Allowed: true}, nil
	}

	retryAfter := time.Duration(windowStart+int64(windowSize.Seconds())-now.Unix()) * time.Second
	return Result{Allowed: false, RetryAfter: retryAfter}, nil
}

// RecordRequest increments the current window's counter for
// (operation, apiKey). With failOpen set, a KV error is swallowed so the
// operation that triggered recording does not fail because the counter
// couldn't be persisted; without it, the KV error is returned.
func (l *Limiter) RecordRequest(ctx context.Context, operation, apiKey string, now time.Time) error {
	windowStart := currentWindowStart(now)
	key := windowKey(operation, apiKey, windowStart)

	_, err := l.kv.Incr(ctx, key, windowSize+keyTTLSlack)
	if err != nil && l.failOpen {
		return nil
	}
	return err
}
