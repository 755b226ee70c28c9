// Package middleware ships chain links for the push dispatch pipeline:
// delivery logging, predicate filtering, rate limiting, and caller-opt-in
// retry. Every link forwards through its continuation except where documented.
package middleware

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Logging records every delivery that passes through it, tagging the chain
// below with a per-dispatch correlation id. It always forwards.
type Logging struct {
	logger *slog.Logger
}

func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger.With("component", "DeliveryLog")}
}

func (l *Logging) Deliver(ctx context.Context, msg push.Message, dev push.Device, next push.NextFunc) error {
	log := l.logger.With(
		"dispatch_id", uuid.NewString(),
		"kind", dev.Kind,
		"device", dev.Identifier,
	)

	log.Info("delivery started")
	if err := next(ctx, msg, dev); err != nil {
		log.Error("delivery failed", "err", err)
		return err
	}
	log.Info("delivery complete")
	return nil
}
