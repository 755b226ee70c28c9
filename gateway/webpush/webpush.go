// Package webpush implements the push gateway for browser push over the Web
// Push protocol with VAPID authentication.
package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	wp "github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

const defaultTTL = 60

// Gateway delivers to browser subscriptions. The device identifier carries
// the JSON-encoded subscription object handed out by the browser:
// {"endpoint": ..., "keys": {"p256dh": ..., "auth": ...}}.
type Gateway struct {
	subscriber string
	publicKey  string
	privateKey string
	ttl        int
	payload    bool
	httpClient *http.Client
	logger     *slog.Logger
}

// New validates the configuration. Required options: vapid_public_key,
// vapid_private_key, subscriber (contact mailto or URL). Optional: ttl
// (seconds), payload, adapter (http.RoundTripper).
func New(opts push.Options, logger *slog.Logger) (*Gateway, error) {
	if err := opts.Require("vapid_public_key", "vapid_private_key", "subscriber"); err != nil {
		return nil, err
	}

	client := &http.Client{}
	if transport := opts.Transport("adapter"); transport != nil {
		client.Transport = transport
	}

	ttl := opts.Int("ttl")
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Gateway{
		subscriber: opts.String("subscriber"),
		publicKey:  opts.String("vapid_public_key"),
		privateKey: opts.String("vapid_private_key"),
		ttl:        ttl,
		payload:    opts.Bool("payload"),
		httpClient: client,
		logger:     logger.With("component", "WebPushGateway"),
	}, nil
}

func (g *Gateway) Name() string    { return "webpush" }
func (g *Gateway) Kinds() []string { return []string{push.KindWeb} }

// Deliver sends one notification to the subscription endpoint. A 201 is
// success; anything else, including the 404/410 a dead subscription returns,
// fails with *push.DeliveryFailedError.
func (g *Gateway) Deliver(_ context.Context, msg push.Message, dev push.Device, _ push.NextFunc) error {
	var sub wp.Subscription
	if err := json.Unmarshal([]byte(dev.Identifier), &sub); err != nil {
		return &push.DeliveryFailedError{
			Gateway: g.Name(),
			Message: msg,
			Device:  dev,
			Err:     fmt.Errorf("decode subscription: %w", err),
		}
	}

	body := map[string]any{
		"notification": map[string]string{
			"title": msg.Subject,
			"body":  msg.Body,
		},
	}
	if g.payload && len(msg.Payload) > 0 {
		body["data"] = msg.Payload
	}
	payloadBytes, err := json.Marshal(body)
	if err != nil {
		return &push.DeliveryFailedError{Gateway: g.Name(), Message: msg, Device: dev, Err: err}
	}

	resp, err := wp.SendNotification(payloadBytes, &sub, &wp.Options{
		Subscriber:      g.subscriber,
		VAPIDPublicKey:  g.publicKey,
		VAPIDPrivateKey: g.privateKey,
		TTL:             g.ttl,
		HTTPClient:      g.httpClient,
	})
	if err != nil {
		return &push.DeliveryFailedError{Gateway: g.Name(), Message: msg, Device: dev, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return &push.DeliveryFailedError{
			Gateway: g.Name(),
			Message: msg,
			Device:  dev,
			Status:  resp.StatusCode,
			Body:    string(raw),
		}
	}

	g.logger.Debug("delivered", "endpoint", sub.Endpoint)
	return nil
}
