// Package apns implements the push gateway for the Apple Push Notification
// service over the HTTP/2 provider API with token-based authentication.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Client defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type Client interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Gateway delivers to iOS devices.
type Gateway struct {
	client  Client
	topic   string // the app bundle id
	payload bool
	logger  *slog.Logger
}

// New validates the configuration and builds the token-authenticated client.
// Required options: key_id, team_id, bundle_id, p8_key (raw .p8 contents).
// Optional: development (bool, use the sandbox endpoint), payload.
//
// The P8 key is parsed immediately to fail fast on bad credentials; parsing
// failure surfaces as *push.AuthenticationFailedError.
func New(opts push.Options, logger *slog.Logger) (*Gateway, error) {
	if err := opts.Require("key_id", "team_id", "bundle_id", "p8_key"); err != nil {
		return nil, err
	}

	authKey, err := token.AuthKeyFromBytes([]byte(opts.String("p8_key")))
	if err != nil {
		return nil, &push.AuthenticationFailedError{
			Gateway: "apns",
			Err:     fmt.Errorf("parse P8 key: %w", err),
		}
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   opts.String("key_id"),
		TeamID:  opts.String("team_id"),
	})
	if opts.Bool("development") {
		client.Development()
	} else {
		client.Production()
	}

	return NewWithClient(client, opts, logger), nil
}

// NewWithClient wires an existing client. The concrete *apns2.Client
// satisfies the Client interface.
func NewWithClient(client Client, opts push.Options, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:  client,
		topic:   opts.String("bundle_id"),
		payload: opts.Bool("payload"),
		logger:  logger.With("component", "APNSGateway"),
	}
}

func (g *Gateway) Name() string    { return "apns" }
func (g *Gateway) Kinds() []string { return []string{push.KindIOS} }

// Deliver pushes one notification to the device token. APNs reports failures
// with a status code and a machine-readable reason; both are carried on the
// returned *push.DeliveryFailedError.
func (g *Gateway) Deliver(_ context.Context, msg push.Message, dev push.Device, _ push.NextFunc) error {
	builder := payload.NewPayload().AlertBody(msg.Body)
	if msg.Subject != "" {
		builder.AlertTitle(msg.Subject)
	}
	if msg.Badge != nil {
		builder.Badge(*msg.Badge)
	}
	if msg.Sound != "" {
		builder.Sound(msg.Sound)
	}
	if g.payload {
		for k, v := range msg.Payload {
			builder.Custom(k, v)
		}
	}

	res, err := g.client.Push(&apns2.Notification{
		DeviceToken: dev.Identifier,
		Topic:       g.topic,
		Payload:     builder,
	})
	if err != nil {
		return &push.DeliveryFailedError{Gateway: g.Name(), Message: msg, Device: dev, Err: err}
	}
	if !res.Sent() {
		return &push.DeliveryFailedError{
			Gateway: g.Name(),
			Message: msg,
			Device:  dev,
			Status:  res.StatusCode,
			Body:    res.Reason,
		}
	}

	g.logger.Debug("delivered", "device", dev.Identifier, "apns_id", res.ApnsID)
	return nil
}
