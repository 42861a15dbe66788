package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/ports"
	"github.com/wa-agent/backend/internal/ratelimit"
)

const sendOperation = "gateway.send"

// RateLimited wraps a ports.Gateway, applying the shared per-session
// fixed-window limiter (spec section 4.I) to the two operations that
// actually hit the WhatsApp gateway's own rate limits: sending a
// message and sending a typing indicator.
type RateLimited struct {
	next    ports.Gateway
	limiter *ratelimit.Limiter
	now     func() time.Time
}

var _ ports.Gateway = (*RateLimited)(nil)

// NewRateLimited constructs a RateLimited gateway decorator.
func NewRateLimited(next ports.Gateway, limiter *ratelimit.Limiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter, now: time.Now}
}

func (r *RateLimited) check(ctx context.Context, sessionID string) error {
	result, err := r.limiter.CheckLimit(ctx, sendOperation, sessionID, r.now())
	if err != nil {
		return err
	}
	if !result.Allowed {
		return apperr.RateLimited(errors.New("gateway send rate limit exceeded"), int(result.RetryAfter.Seconds()))
	}
	return r.limiter.RecordRequest(ctx, sendOperation, sessionID, r.now())
}

// CreateSession implements ports.Gateway, unrestricted (admin operation).
func (r *RateLimited) CreateSession(ctx context.Context, sessionID string, webhook ports.WebhookConfig) error {
	return r.next.CreateSession(ctx, sessionID, webhook)
}

// GetSessionStatus implements ports.Gateway, unrestricted.
func (r *RateLimited) GetSessionStatus(ctx context.Context, sessionID string) (ports.SessionStatus, error) {
	return r.next.GetSessionStatus(ctx, sessionID)
}

// SendMessage implements ports.Gateway, rate limited.
func (r *RateLimited) SendMessage(ctx context.Context, sessionID, chatID, text string) error {
	if err := r.check(ctx, sessionID); err != nil {
		return err
	}
	return r.next.SendMessage(ctx, sessionID, chatID, text)
}

// SendTyping implements ports.Gateway, rate limited.
func (r *RateLimited) SendTyping(ctx context.Context, sessionID, chatID string, duration time.Duration) error {
	if err := r.check(ctx, sessionID); err != nil {
		return err
	}
	return r.next.SendTyping(ctx, sessionID, chatID, duration)
}

// RestartSession implements ports.Gateway, unrestricted.
func (r *RateLimited) RestartSession(ctx context.Context, sessionID string) error {
	return r.next.RestartSession(ctx, sessionID)
}
