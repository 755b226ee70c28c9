package push

import "context"

// NextFunc forwards a delivery to the remaining links of the chain. A handler
// that declines to call it terminates the chain for that delivery.
type NextFunc func(ctx context.Context, msg Message, dev Device) error

// Handler is one link of the delivery chain. A middleware may forward the pair
// unchanged, forward a transformed copy, or drop the delivery by returning
// without invoking next. Errors propagate unchanged to the original caller.
type Handler interface {
	Deliver(ctx context.Context, msg Message, dev Device, next NextFunc) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message, dev Device, next NextFunc) error

func (f HandlerFunc) Deliver(ctx context.Context, msg Message, dev Device, next NextFunc) error {
	return f(ctx, msg, dev, next)
}

// Gateway is a terminal chain link delivering to one push-notification
// backend. Kinds declares which device kinds it handles; the dispatcher only
// routes matching devices to it. A gateway must never invoke next.
type Gateway interface {
	Handler
	Name() string
	Kinds() []string
}
