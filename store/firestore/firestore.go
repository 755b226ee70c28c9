// Package firestore implements a DeviceStore backed by Google Cloud
// Firestore, laid out as users/{userID}/devices/{identifierHash}.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

type Store struct {
	client *firestore.Client
}

func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// deviceRecord is the internal DB representation.
type deviceRecord struct {
	Kind       string    `firestore:"kind"`
	Identifier string    `firestore:"identifier"`
	UpdatedAt  time.Time `firestore:"updated_at"`
}

func (s *Store) Register(ctx context.Context, userID string, dev push.Device) error {
	record := deviceRecord{
		Kind:       dev.Kind,
		Identifier: dev.Identifier,
		UpdatedAt:  time.Now(),
	}
	// The identifier hash is the doc id: re-registering the same device is
	// an upsert, and long tokens never hit Firestore's doc id limits.
	_, err := s.deviceRef(userID, dev.Identifier).Set(ctx, record)
	return err
}

func (s *Store) Unregister(ctx context.Context, userID string, identifier string) error {
	_, err := s.deviceRef(userID, identifier).Delete(ctx)
	return err
}

func (s *Store) Devices(ctx context.Context, userID string) ([]push.Device, error) {
	iter := s.devicesCollection(userID).Documents(ctx)
	defer iter.Stop()

	var devices []push.Device
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Skip corrupt rows rather than failing the whole fan-out.
			continue
		}
		if record.Identifier == "" {
			continue
		}
		devices = append(devices, push.Device{Identifier: record.Identifier, Kind: record.Kind})
	}
	return devices, nil
}

func (s *Store) deviceRef(userID, identifier string) *firestore.DocumentRef {
	return s.devicesCollection(userID).Doc(hashIdentifier(identifier))
}

func (s *Store) devicesCollection(userID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(userID).Collection("devices")
}

func hashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}
