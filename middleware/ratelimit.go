package middleware

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// RateLimit throttles deliveries through a token bucket shared by all
// dispatch calls passing through this link. In waiting mode it blocks until a
// token is available (or the context is done); otherwise over-limit
// deliveries are dropped silently, like a filter.
type RateLimit struct {
	limiter *rate.Limiter
	wait    bool
	logger  *slog.Logger
}

func NewRateLimit(limit rate.Limit, burst int, wait bool, logger *slog.Logger) *RateLimit {
	return &RateLimit{
		limiter: rate.NewLimiter(limit, burst),
		wait:    wait,
		logger:  logger.With("component", "RateLimit"),
	}
}

func (r *RateLimit) Deliver(ctx context.Context, msg push.Message, dev push.Device, next push.NextFunc) error {
	if r.wait {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return next(ctx, msg, dev)
	}

	if !r.limiter.Allow() {
		r.logger.Warn("delivery dropped: rate limit exceeded", "kind", dev.Kind, "device", dev.Identifier)
		return nil
	}
	return next(ctx, msg, dev)
}
