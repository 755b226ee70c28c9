// Package fanout sends one message to every device a user has registered.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
	"github.com/tinywideclouds/go-push-dispatch/store"
)

// Dispatcher is the subset of push.Dispatcher the sender needs.
type Dispatcher interface {
	Deliver(ctx context.Context, message, device any, stack ...push.Handler) error
}

// Sender looks a user's devices up in a DeviceStore and pushes the message
// through the dispatcher once per device.
type Sender struct {
	store      store.DeviceStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewSender(deviceStore store.DeviceStore, dispatcher Dispatcher, logger *slog.Logger) *Sender {
	return &Sender{
		store:      deviceStore,
		dispatcher: dispatcher,
		logger:     logger.With("component", "Fanout"),
	}
}

// DeliverToUser pushes msg to every registered device. Per-device failures do
// not stop the fan-out; they are joined and returned together so the caller
// can decide per-device retry or dead-lettering. A user with no devices is a
// logged no-op.
func (s *Sender) DeliverToUser(ctx context.Context, msg push.Message, userID string) error {
	devices, err := s.store.Devices(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch devices for %s: %w", userID, err)
	}
	if len(devices) == 0 {
		s.logger.Info("no devices registered for user; dropping notification", "user", userID)
		return nil
	}

	var errs []error
	for _, dev := range devices {
		if err := s.dispatcher.Deliver(ctx, msg, dev); err != nil {
			s.logger.Error("delivery failed", "user", userID, "device", dev.Identifier, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
