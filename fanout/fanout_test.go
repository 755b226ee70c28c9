package fanout_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/fanout"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
	"github.com/tinywideclouds/go-push-dispatch/store/memory"
)

type mockDispatcher struct {
	mu      sync.Mutex
	devices []push.Device
	failFor string
}

func (m *mockDispatcher) Deliver(_ context.Context, message, device any, _ ...push.Handler) error {
	dev, err := push.ToDevice(device)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.devices = append(m.devices, dev)
	m.mu.Unlock()

	if m.failFor != "" && dev.Identifier == m.failFor {
		return &push.DeliveryFailedError{Gateway: "mock", Device: dev, Status: 503}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliverToUser(t *testing.T) {
	ctx := context.Background()
	msg := push.Message{Body: "hello"}

	t.Run("delivers to every registered device", func(t *testing.T) {
		deviceStore := memory.New()
		require.NoError(t, deviceStore.Register(ctx, "alice", push.Device{Identifier: "tok1", Kind: push.KindAndroid}))
		require.NoError(t, deviceStore.Register(ctx, "alice", push.Device{Identifier: "tok2", Kind: push.KindIOS}))

		dispatcher := &mockDispatcher{}
		sender := fanout.NewSender(deviceStore, dispatcher, discardLogger())

		require.NoError(t, sender.DeliverToUser(ctx, msg, "alice"))
		assert.Len(t, dispatcher.devices, 2)
	})

	t.Run("no devices is a no-op", func(t *testing.T) {
		dispatcher := &mockDispatcher{}
		sender := fanout.NewSender(memory.New(), dispatcher, discardLogger())

		require.NoError(t, sender.DeliverToUser(ctx, msg, "nobody"))
		assert.Empty(t, dispatcher.devices)
	})

	t.Run("one failing device does not stop the fan-out", func(t *testing.T) {
		deviceStore := memory.New()
		require.NoError(t, deviceStore.Register(ctx, "alice", push.Device{Identifier: "bad", Kind: push.KindAndroid}))
		require.NoError(t, deviceStore.Register(ctx, "alice", push.Device{Identifier: "good", Kind: push.KindAndroid}))

		dispatcher := &mockDispatcher{failFor: "bad"}
		sender := fanout.NewSender(deviceStore, dispatcher, discardLogger())

		err := sender.DeliverToUser(ctx, msg, "alice")

		var deliveryErr *push.DeliveryFailedError
		require.ErrorAs(t, err, &deliveryErr)
		assert.Len(t, dispatcher.devices, 2, "the healthy device must still be attempted")
	})
}
