package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

const defaultMaxDelay = 30 * time.Second

// Retry re-forwards a delivery after a backend failure. The dispatch core
// itself never retries; callers opt in by placing this link in the chain.
//
// Only *push.DeliveryFailedError is retried: invalid input, missing gateways
// and authentication failures are not transient and propagate immediately.
type Retry struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

func NewRetry(maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Retry {
	return &Retry{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   defaultMaxDelay,
		logger:     logger.With("component", "Retry"),
	}
}

// SetMaxDelay caps the exponential backoff.
func (r *Retry) SetMaxDelay(maxDelay time.Duration) {
	r.maxDelay = maxDelay
}

func (r *Retry) Deliver(ctx context.Context, msg push.Message, dev push.Device, next push.NextFunc) error {
	err := next(ctx, msg, dev)

	for attempt := 1; err != nil && attempt <= r.maxRetries; attempt++ {
		var deliveryErr *push.DeliveryFailedError
		if !errors.As(err, &deliveryErr) {
			return err
		}

		delay := r.delay(attempt)
		r.logger.Info("retrying delivery", "attempt", attempt, "delay", delay, "device", dev.Identifier)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		err = next(ctx, msg, dev)
	}
	return err
}

func (r *Retry) delay(attempt int) time.Duration {
	delay := r.baseDelay << (attempt - 1)
	if delay > r.maxDelay || delay <= 0 {
		return r.maxDelay
	}
	return delay
}
