package runtime

import (
	"context"
	"time"

	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/contract"
	"github.com/drblury/contractflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// DispatchInfo describes one inbound request or event as it passes through
// the middleware chain.
type DispatchInfo struct {
	Kind      contract.Kind
	Contract  string
	Handler   string
	Template  string
	Subject   string
	Headers   metadatapkg.Metadata
	StartedAt time.Time
}

// RequestID returns the Request-Id header, if any.
func (d DispatchInfo) RequestID() string {
	return d.Headers[metadatapkg.HeaderRequestID]
}

// DispatchFunc handles one inbound request or event.
type DispatchFunc func(ctx context.Context, info DispatchInfo) error

// Middleware wraps a DispatchFunc.
type Middleware func(next DispatchFunc) DispatchFunc

// Adapter runs a bound dispatch table on a concrete transport.
type Adapter interface {
	Serve(ctx context.Context, table *DispatchTable) (Instance, error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context, table *DispatchTable) (Instance, error)

func (f AdapterFunc) Serve(ctx context.Context, table *DispatchTable) (Instance, error) {
	return f(ctx, table)
}

// Instance is a running adapter.
type Instance interface {
	Stop(ctx context.Context) error
}

// InstanceFunc adapts a function to Instance.
type InstanceFunc func(ctx context.Context) error

func (f InstanceFunc) Stop(ctx context.Context) error { return f(ctx) }

// DispatchTable is the resolved routing table produced by Server.Bind. It is
// immutable; adapters read it concurrently.
type DispatchTable struct {
	Application *app.Application
	Operations  []*OperationRoute
	Events      []*EventRoute
	Logger      loggingpkg.ServiceLogger
}

// OperationRoute serves requests for one operation.
type OperationRoute struct {
	Binding handlers.OperationBinding
	Stats   *RouteStats

	chain  []Middleware
	logger loggingpkg.ServiceLogger
}

// Name is the endpoint name, the operation's contract name.
func (r *OperationRoute) Name() string { return r.Binding.Contract().Name() }

// Template is the raw address template.
func (r *OperationRoute) Template() string { return r.Binding.Contract().Address().String() }

// Pattern is the subscription subject.
func (r *OperationRoute) Pattern() string { return r.Binding.Contract().Address().Pattern() }

// Contract returns the bound operation.
func (r *OperationRoute) Contract() contract.Descriptor { return r.Binding.Contract() }

// Serve runs in through the middleware chain and the handler binding.
func (r *OperationRoute) Serve(ctx context.Context, in handlers.InboundRequest) error {
	info := newDispatchInfo(r.Binding, in.Subject(), in.Headers())
	final := func(ctx context.Context, _ DispatchInfo) error {
		return r.Binding.ServeRequest(ctx, in, r.logger)
	}
	return dispatch(ctx, info, r.chain, r.Stats, final)
}

// EventRoute serves messages for one event.
type EventRoute struct {
	Binding handlers.EventBinding
	Stats   *RouteStats

	chain  []Middleware
	logger loggingpkg.ServiceLogger
}

// Name is the consumer name, the event's contract name.
func (r *EventRoute) Name() string { return r.Binding.Contract().Name() }

// Template is the raw address template.
func (r *EventRoute) Template() string { return r.Binding.Contract().Address().String() }

// Pattern is the subscription subject.
func (r *EventRoute) Pattern() string { return r.Binding.Contract().Address().Pattern() }

// Contract returns the bound event.
func (r *EventRoute) Contract() contract.Descriptor { return r.Binding.Contract() }

// Serve runs in through the middleware chain and the handler binding.
func (r *EventRoute) Serve(ctx context.Context, in handlers.InboundMessage) error {
	info := newDispatchInfo(r.Binding, in.Subject(), in.Headers())
	final := func(ctx context.Context, _ DispatchInfo) error {
		return r.Binding.ServeMessage(ctx, in, r.logger)
	}
	return dispatch(ctx, info, r.chain, r.Stats, final)
}

func newDispatchInfo(b handlers.Binding, subject string, headers metadatapkg.Metadata) DispatchInfo {
	c := b.Contract()
	return DispatchInfo{
		Kind:      c.Kind(),
		Contract:  c.Name(),
		Handler:   b.Name(),
		Template:  c.Address().String(),
		Subject:   subject,
		Headers:   headers.Clone(),
		StartedAt: time.Now(),
	}
}

// dispatch applies chain outermost first and records the outcome in stats.
func dispatch(ctx context.Context, info DispatchInfo, chain []Middleware, stats *RouteStats, final DispatchFunc) error {
	h := final
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	if stats == nil {
		return h(ctx, info)
	}
	stats.onStart()
	err := h(ctx, info)
	stats.onFinish(time.Since(info.StartedAt), err)
	return err
}
