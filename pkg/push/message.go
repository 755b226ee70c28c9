// Package push implements a configurable push-notification dispatch pipeline:
// an ordered middleware chain terminating in one or more delivery gateways.
//
// Callers hand a message-like and a device-like value to a Dispatcher. Both are
// normalized through the conversion capability (MessageConverter /
// DeviceConverter), the registered middleware chain runs front-to-back, and the
// first gateways whose kinds match the device perform the network delivery.
package push

// Message is the canonical notification content. Backends read the fields they
// understand: every backend uses Body, APNs additionally reads Badge and Sound,
// and Payload carries arbitrary key/value pairs forwarded when a gateway is
// configured with the "payload" option.
//
// Messages travel through the chain by value. A middleware that wants to
// change one must forward a modified copy; it must never mutate Payload after
// forwarding downstream.
type Message struct {
	Body    string
	Subject string
	Badge   *int
	Sound   string
	Payload map[string]string
}

// PushMessage returns the message itself, satisfying MessageConverter.
func (m Message) PushMessage() Message { return m }

// Clone returns a copy with its own Payload map, safe to modify independently.
func (m Message) Clone() Message {
	out := m
	if m.Payload != nil {
		out.Payload = make(map[string]string, len(m.Payload))
		for k, v := range m.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// Device addresses one delivery target. Identifier is the backend-specific
// token (an FCM registration id, an APNs device token, or a JSON-encoded
// browser subscription for web push). Kind selects which gateways apply.
type Device struct {
	Identifier string
	Kind       string
}

// PushDevice returns the device itself, satisfying DeviceConverter.
func (d Device) PushDevice() Device { return d }

// Device kinds understood by the gateways shipped with this module.
const (
	KindAndroid = "android"
	KindIOS     = "ios"
	KindWeb     = "web"
)

// MessageConverter is the conversion capability for messages. Any caller type
// implementing it can be passed to Dispatcher.Deliver in place of a Message.
type MessageConverter interface {
	PushMessage() Message
}

// DeviceConverter is the conversion capability for devices.
type DeviceConverter interface {
	PushDevice() Device
}

// ToMessage normalizes an arbitrary value into a Message by probing for the
// conversion capability. It never special-cases concrete types: a value that
// does not implement MessageConverter fails with *InvalidInputError.
func ToMessage(v any) (Message, error) {
	if c, ok := v.(MessageConverter); ok {
		return c.PushMessage(), nil
	}
	return Message{}, &InvalidInputError{Value: v, Capability: "PushMessage"}
}

// ToDevice normalizes an arbitrary value into a Device. See ToMessage.
func ToDevice(v any) (Device, error) {
	if c, ok := v.(DeviceConverter); ok {
		return c.PushDevice(), nil
	}
	return Device{}, &InvalidInputError{Value: v, Capability: "PushDevice"}
}
