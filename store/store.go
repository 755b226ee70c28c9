// Package store defines the contract for remembering which devices belong to
// a user, so notifications can be fanned out without the caller tracking
// tokens itself.
package store

import (
	"context"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// DeviceStore manages the devices registered for each user. Register must
// behave as an upsert keyed on the device identifier.
type DeviceStore interface {
	// Register adds or updates a device for the user.
	Register(ctx context.Context, userID string, dev push.Device) error

	// Unregister removes the device with the given identifier. Removing an
	// unknown identifier is not an error.
	Unregister(ctx context.Context, userID string, identifier string) error

	// Devices returns every device registered for the user.
	Devices(ctx context.Context, userID string) ([]push.Device, error)
}
