package push

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Converter normalizes arbitrary caller values into the canonical types. The
// default implementation probes the conversion capability interfaces; replace
// it to support heterogeneous input that cannot implement them.
type Converter interface {
	ToMessage(v any) (Message, error)
	ToDevice(v any) (Device, error)
}

// capabilityConverter is the default Converter, backed by the interface
// probes.
type capabilityConverter struct{}

func (capabilityConverter) ToMessage(v any) (Message, error) { return ToMessage(v) }
func (capabilityConverter) ToDevice(v any) (Device, error)   { return ToDevice(v) }

// Dispatcher routes (message, device) pairs through the middleware chain into
// the gateway set. It owns the two deferred registries plus the converter and
// logger slots; construct one at startup and share it, there is no
// package-level state.
//
// Registration and slot reassignment are expected to finish before
// steady-state dispatch begins. Deliver itself is reentrant and safe for
// concurrent use.
type Dispatcher struct {
	middleware *Registry[Handler]
	gateways   *Registry[Gateway]

	mu        sync.RWMutex
	converter Converter
	logger    *slog.Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger falls back to
// slog.Default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		middleware: NewRegistry[Handler](),
		gateways:   NewRegistry[Gateway](),
		converter:  capabilityConverter{},
		logger:     logger.With("component", "Dispatcher"),
	}
}

// Use appends a middleware to the chain.
func (d *Dispatcher) Use(h Handler) {
	d.middleware.Add(h)
}

// UseLazy appends a middleware constructor, invoked on the first delivery.
func (d *Dispatcher) UseLazy(build func() (Handler, error)) {
	d.middleware.AddLazy(build)
}

// AddGateway appends a constructed gateway.
func (d *Dispatcher) AddGateway(g Gateway) {
	d.gateways.Add(g)
}

// AddGatewayLazy appends a gateway constructor. Expensive setup such as the
// backend authentication handshake is deferred until the first delivery that
// consults the gateway set, and runs at most once.
func (d *Dispatcher) AddGatewayLazy(build func() (Gateway, error)) {
	d.gateways.AddLazy(build)
}

// SetLogger replaces the logger slot.
func (d *Dispatcher) SetLogger(logger *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger.With("component", "Dispatcher")
}

// SetConverter replaces the conversion slot. A nil converter restores the
// capability-probing default.
func (d *Dispatcher) SetConverter(c Converter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c == nil {
		c = capabilityConverter{}
	}
	d.converter = c
}

func (d *Dispatcher) convert() Converter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.converter
}

func (d *Dispatcher) log() *slog.Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.logger
}

// Deliver converts both arguments through the converter slot, builds the
// effective stack, and executes it to completion on the calling goroutine.
//
// When an explicit stack is supplied it replaces the default pipeline (useful
// for tests and custom routing). Otherwise the stack is the realized
// middleware chain followed by the realized gateways whose kinds match the
// device, in registration order; no matching gateway fails with
// *NoGatewayFoundError before anything executes.
//
// All errors raised by any link propagate unchanged: no swallowing, no
// internal retry, no partial-success reporting.
func (d *Dispatcher) Deliver(ctx context.Context, message, device any, stack ...Handler) error {
	conv := d.convert()
	msg, err := conv.ToMessage(message)
	if err != nil {
		return err
	}
	dev, err := conv.ToDevice(device)
	if err != nil {
		return err
	}

	if len(stack) == 0 {
		stack, err = d.defaultStack(dev)
		if err != nil {
			return err
		}
	}

	d.log().Debug("dispatching", "kind", dev.Kind, "device", dev.Identifier, "links", len(stack))
	return runStack(ctx, msg, dev, stack)
}

// defaultStack realizes both registries and filters the gateway set down to
// the device's kind.
func (d *Dispatcher) defaultStack(dev Device) ([]Handler, error) {
	middlewares, err := d.middleware.Realize()
	if err != nil {
		return nil, err
	}
	gateways, err := d.gateways.Realize()
	if err != nil {
		return nil, err
	}

	stack := make([]Handler, 0, len(middlewares)+len(gateways))
	stack = append(stack, middlewares...)

	matched := 0
	for _, g := range gateways {
		if slices.Contains(g.Kinds(), dev.Kind) {
			stack = append(stack, g)
			matched++
		}
	}
	if matched == 0 {
		return nil, &NoGatewayFoundError{Kind: dev.Kind}
	}
	return stack, nil
}

// runStack executes the chain head-to-tail. The continuation closes over the
// tail slice rather than a shared cursor, so every dispatch call is
// reentrant-safe and a link can only reach the units behind it.
func runStack(ctx context.Context, msg Message, dev Device, stack []Handler) error {
	if len(stack) == 0 {
		return nil
	}
	tail := stack[1:]
	next := func(ctx context.Context, m Message, d Device) error {
		return runStack(ctx, m, d, tail)
	}
	return stack[0].Deliver(ctx, msg, dev, next)
}
