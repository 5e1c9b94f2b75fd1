package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
)

const defaultStopTimeout = 10 * time.Second

// State is the lifecycle position of a Server.
type State uint8

const (
	StateUnbound State = iota
	StateBound
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	}
	return "unbound"
}

// ServerOption customises NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger          loggingpkg.ServiceLogger
	middlewares     []MiddlewareRegistration
	disableDefaults bool
	hooks           DispatchHooks
	metrics         *DispatchMetrics
	tracerProvider  trace.TracerProvider
	classifier      ErrorClassifier
}

// WithLogger sets the logger handed to the adapter and every handler.
func WithLogger(logger loggingpkg.ServiceLogger) ServerOption {
	return func(o *serverOptions) { o.logger = logger }
}

// WithMiddlewares appends registrations after the default chain.
func WithMiddlewares(regs ...MiddlewareRegistration) ServerOption {
	return func(o *serverOptions) { o.middlewares = append(o.middlewares, regs...) }
}

// WithoutDefaultMiddlewares skips DefaultMiddlewares.
func WithoutDefaultMiddlewares() ServerOption {
	return func(o *serverOptions) { o.disableDefaults = true }
}

// WithHooks installs dispatch hooks as the innermost middleware. Repeated
// calls merge.
func WithHooks(hooks DispatchHooks) ServerOption {
	return func(o *serverOptions) { o.hooks = o.hooks.Merge(hooks) }
}

// WithMetrics enables Prometheus dispatch metrics.
func WithMetrics(metrics *DispatchMetrics) ServerOption {
	return func(o *serverOptions) { o.metrics = metrics }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(provider trace.TracerProvider) ServerOption {
	return func(o *serverOptions) { o.tracerProvider = provider }
}

// WithErrorClassifier overrides how route stats bucket handler errors.
func WithErrorClassifier(classifier ErrorClassifier) ServerOption {
	return func(o *serverOptions) { o.classifier = classifier }
}

// Server binds handlers to an application's contracts and runs them on an
// Adapter.
type Server struct {
	mu sync.Mutex

	adapter        Adapter
	logger         loggingpkg.ServiceLogger
	metrics        *DispatchMetrics
	tracerProvider trace.TracerProvider
	classifier     ErrorClassifier
	resources      *resourceTracker
	chain          []Middleware

	state    State
	table    *DispatchTable
	instance Instance
}

// NewServer constructs an unbound Server running on adapter.
func NewServer(adapter Adapter, opts ...ServerOption) (*Server, error) {
	if adapter == nil {
		return nil, errspkg.ErrAdapterRequired
	}
	var o serverOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	s := &Server{
		adapter:        adapter,
		logger:         loggingpkg.OrNop(o.logger),
		metrics:        o.metrics,
		tracerProvider: o.tracerProvider,
		classifier:     o.classifier,
		resources:      newResourceTracker(),
	}
	if s.classifier == nil {
		s.classifier = DefaultErrorClassifier
	}

	var registrations []MiddlewareRegistration
	if !o.disableDefaults {
		registrations = append(registrations, DefaultMiddlewares()...)
	}
	registrations = append(registrations, o.middlewares...)
	if !o.hooks.empty() {
		registrations = append(registrations, DispatchHooksMiddleware(o.hooks))
	}

	for _, reg := range registrations {
		mw, err := s.register(reg)
		if err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return nil, fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
		if mw != nil {
			s.chain = append(s.chain, mw)
		}
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Table returns the bound dispatch table, or nil before Bind.
func (s *Server) Table() *DispatchTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// Logger returns the server logger.
func (s *Server) Logger() loggingpkg.ServiceLogger { return s.logger }

// Bind validates bindings against application and builds the dispatch table.
// On failure the server stays unbound.
func (s *Server) Bind(application *app.Application, bindings ...handlers.Binding) error {
	if application == nil {
		return errspkg.ErrApplicationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnbound:
	case StateStopped:
		return errspkg.ErrServerStopped
	default:
		return errspkg.ErrAlreadyBound
	}

	var ops []handlers.OperationBinding
	var evs []handlers.EventBinding
	for _, b := range bindings {
		if b == nil {
			return errspkg.ErrHandlerRequired
		}
		c := b.Contract()
		if c == nil || !application.Has(c) {
			return &errspkg.UnsupportedHandlerError{Handler: b.Name(), Application: application.Name()}
		}
		switch c.Kind() {
		case contract.KindOperation:
			ob, ok := b.(handlers.OperationBinding)
			if !ok {
				return &errspkg.UnsupportedHandlerError{Handler: b.Name(), Application: application.Name()}
			}
			ops = append(ops, ob)
		case contract.KindEvent:
			eb, ok := b.(handlers.EventBinding)
			if !ok {
				return &errspkg.UnsupportedHandlerError{Handler: b.Name(), Application: application.Name()}
			}
			evs = append(evs, eb)
		}
	}

	if err := checkBindings(ops); err != nil {
		return err
	}
	if err := checkBindings(evs); err != nil {
		return err
	}

	table := &DispatchTable{Application: application, Logger: s.logger}
	for _, b := range ops {
		table.Operations = append(table.Operations, &OperationRoute{
			Binding: b,
			Stats:   newRouteStats(s.resources, s.classifier),
			chain:   s.chain,
			logger:  s.logger.With(loggingpkg.LogFields{"operation": b.Contract().Name()}),
		})
	}
	for _, b := range evs {
		table.Events = append(table.Events, &EventRoute{
			Binding: b,
			Stats:   newRouteStats(s.resources, s.classifier),
			chain:   s.chain,
			logger:  s.logger.With(loggingpkg.LogFields{"event": b.Contract().Name()}),
		})
	}

	s.table = table
	s.state = StateBound
	s.logger.Info("Bound application", loggingpkg.LogFields{
		"application": application.Name(),
		"version":     application.Version(),
		"operations":  len(table.Operations),
		"events":      len(table.Events),
	})
	return nil
}

// checkBindings rejects two bindings for one contract and bindings whose
// address templates could both match one subject or subscribe one pattern.
func checkBindings[B handlers.Binding](bindings []B) error {
	for i := 0; i < len(bindings); i++ {
		for j := i + 1; j < len(bindings); j++ {
			a, b := bindings[i], bindings[j]
			ta, tb := a.Contract().Address(), b.Contract().Address()
			if a.Contract() == b.Contract() || ta.Collides(tb) {
				return &errspkg.DuplicateSubjectError{
					First:   a.Name(),
					Second:  b.Name(),
					Subject: ta.String(),
				}
			}
		}
	}
	return nil
}

// Start serves the bound table on the adapter. It returns once the adapter is
// listening.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateBound:
	case StateUnbound:
		return errspkg.ErrNotBound
	case StateStarted:
		return errspkg.ErrAlreadyStarted
	default:
		return errspkg.ErrServerStopped
	}

	instance, err := s.adapter.Serve(ctx, s.table)
	if err != nil {
		return err
	}
	s.instance = instance
	s.state = StateStarted
	s.logger.Info("Server started", loggingpkg.LogFields{"application": s.table.Application.Name()})
	return nil
}

// Stop releases the running instance. Stopping an unstarted or stopped server
// does nothing.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStarted {
		return nil
	}
	s.state = StateStopped
	instance := s.instance
	s.instance = nil
	if instance == nil {
		return nil
	}
	if err := instance.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop server", err, nil)
		return err
	}
	s.logger.Info("Server stopped", nil)
	return nil
}

// Run starts the server and blocks until ctx is cancelled, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultStopTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// Routes lists the bound routes with their stats, operations first.
func (s *Server) Routes() []RouteInfo {
	table := s.Table()
	if table == nil {
		return nil
	}
	routes := make([]RouteInfo, 0, len(table.Operations)+len(table.Events))
	for _, r := range table.Operations {
		routes = append(routes, routeInfo(r.Binding, r.Stats))
	}
	for _, r := range table.Events {
		routes = append(routes, routeInfo(r.Binding, r.Stats))
	}
	return routes
}

func routeInfo(b handlers.Binding, stats *RouteStats) RouteInfo {
	c := b.Contract()
	return RouteInfo{
		Contract: c.Name(),
		Kind:     kindLabel(c.Kind()),
		Handler:  b.Name(),
		Address:  c.Address().String(),
		Stats:    stats,
	}
}
