// Package fcm implements the push gateway for Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Client defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type Client interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Gateway delivers to Android devices through FCM.
type Gateway struct {
	client  Client
	payload bool
	logger  *slog.Logger
}

// New validates the configuration and initializes the Firebase app and its
// messaging client. Required options: project_id, credentials_json (raw
// service-account JSON). Optional: payload.
//
// Credential and client initialization failures surface as
// *push.AuthenticationFailedError.
func New(ctx context.Context, opts push.Options, logger *slog.Logger) (*Gateway, error) {
	if err := opts.Require("project_id", "credentials_json"); err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx,
		&firebase.Config{ProjectID: opts.String("project_id")},
		option.WithCredentialsJSON([]byte(opts.String("credentials_json"))),
	)
	if err != nil {
		return nil, &push.AuthenticationFailedError{Gateway: "fcm", Err: fmt.Errorf("init firebase app: %w", err)}
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, &push.AuthenticationFailedError{Gateway: "fcm", Err: fmt.Errorf("init messaging client: %w", err)}
	}

	return NewWithClient(client, opts, logger), nil
}

// NewWithClient wires an existing client. The concrete *messaging.Client
// satisfies the Client interface.
func NewWithClient(client Client, opts push.Options, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:  client,
		payload: opts.Bool("payload"),
		logger:  logger.With("component", "FCMGateway"),
	}
}

func (g *Gateway) Name() string    { return "fcm" }
func (g *Gateway) Kinds() []string { return []string{push.KindAndroid} }

// Deliver sends one message to the device's registration token.
func (g *Gateway) Deliver(ctx context.Context, msg push.Message, dev push.Device, _ push.NextFunc) error {
	out := &messaging.Message{
		Token: dev.Identifier,
		Notification: &messaging.Notification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
	}
	if g.payload && len(msg.Payload) > 0 {
		out.Data = msg.Payload
	}

	id, err := g.client.Send(ctx, out)
	if err != nil {
		return &push.DeliveryFailedError{Gateway: g.Name(), Message: msg, Device: dev, Err: err}
	}

	g.logger.Debug("delivered", "device", dev.Identifier, "message_id", id)
	return nil
}
