package middleware

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Predicate decides whether a delivery may proceed.
type Predicate func(msg push.Message, dev push.Device) bool

// Filter terminates the chain for deliveries its predicate rejects. Dropping
// is silent: the dispatch call returns nil and the gateway is never reached.
type Filter struct {
	allow  Predicate
	logger *slog.Logger
}

func NewFilter(allow Predicate, logger *slog.Logger) *Filter {
	return &Filter{allow: allow, logger: logger.With("component", "Filter")}
}

func (f *Filter) Deliver(ctx context.Context, msg push.Message, dev push.Device, next push.NextFunc) error {
	if !f.allow(msg, dev) {
		f.logger.Debug("delivery dropped by filter", "kind", dev.Kind, "device", dev.Identifier)
		return nil
	}
	return next(ctx, msg, dev)
}
