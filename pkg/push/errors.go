package push

import (
	"fmt"
)

// InvalidInputError reports a value passed to Deliver that does not expose the
// required conversion capability. It is never retried.
type InvalidInputError struct {
	Value      any
	Capability string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("push: cannot convert %T: missing conversion capability %s()", e.Value, e.Capability)
}

// OptionError reports a configuration problem detected at construction time,
// before any network call is attempted.
type OptionError struct {
	Key    string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("push: option %q: %s", e.Key, e.Reason)
}

// AuthenticationFailedError reports that a gateway could not establish a
// session with its backend: rejected credentials, or a success response whose
// token could not be extracted. The gateway is unusable until reconstructed.
type AuthenticationFailedError struct {
	Gateway string
	Status  int
	Body    string
	Err     error
}

func (e *AuthenticationFailedError) Error() string {
	msg := fmt.Sprintf("push: gateway %s: authentication failed", e.Gateway)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationFailedError) Unwrap() error { return e.Err }

// NoGatewayFoundError reports that no registered gateway declares the device's
// kind. Delivery was never attempted.
type NoGatewayFoundError struct {
	Kind string
}

func (e *NoGatewayFoundError) Error() string {
	return fmt.Sprintf("push: no gateway registered for device kind %q", e.Kind)
}

// DeliveryFailedError reports a backend-rejected or failed delivery. It carries
// the offending message and device so the caller can retry or dead-letter, and
// the response status and raw body for diagnosis. The core never retries it.
type DeliveryFailedError struct {
	Gateway string
	Message Message
	Device  Device
	Status  int
	Body    string
	Err     error
}

func (e *DeliveryFailedError) Error() string {
	msg := fmt.Sprintf("push: gateway %s: delivery to device %q failed", e.Gateway, e.Device.Identifier)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryFailedError) Unwrap() error { return e.Err }
