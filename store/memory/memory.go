// Package memory provides an in-process DeviceStore, useful for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Store keeps registrations in a map, preserving registration order per user.
type Store struct {
	mu    sync.RWMutex
	users map[string][]push.Device
}

func New() *Store {
	return &Store{users: make(map[string][]push.Device)}
}

func (s *Store) Register(_ context.Context, userID string, dev push.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := s.users[userID]
	for i, existing := range devices {
		if existing.Identifier == dev.Identifier {
			devices[i] = dev
			return nil
		}
	}
	s.users[userID] = append(devices, dev)
	return nil
}

func (s *Store) Unregister(_ context.Context, userID string, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := s.users[userID]
	for i, existing := range devices {
		if existing.Identifier == identifier {
			s.users[userID] = append(devices[:i], devices[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) Devices(_ context.Context, userID string) ([]push.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := s.users[userID]
	out := make([]push.Device, len(devices))
	copy(out, devices)
	return out, nil
}
