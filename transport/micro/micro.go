// Package micro serves operations as NATS micro service endpoints and events
// as core NATS subscriptions. It also provides the matching client transport.
package micro

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/drblury/contractflow/internal/runtime"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

const (
	// InternalErrorCode is replied when a handler fails without a mapping.
	InternalErrorCode        = 500
	InternalErrorDescription = "Internal Server Error"
)

var invalidName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Option customises NewAdapter.
type Option func(*Adapter)

// WithQueueGroup load-balances endpoints and event consumers across
// replicas sharing the group.
func WithQueueGroup(group string) Option {
	return func(a *Adapter) { a.queueGroup = group }
}

func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// Adapter is a runtime.Adapter over a NATS connection.
type Adapter struct {
	nc         *nats.Conn
	queueGroup string
	logger     loggingpkg.ServiceLogger
}

// NewAdapter returns an adapter serving over nc.
func NewAdapter(nc *nats.Conn, opts ...Option) (*Adapter, error) {
	if nc == nil {
		return nil, errors.New("contractflow: nats connection is required")
	}
	a := &Adapter{nc: nc}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Serve registers a micro service named after the application with one
// endpoint per operation, and subscribes each event pattern.
func (a *Adapter) Serve(ctx context.Context, table *runtime.DispatchTable) (runtime.Instance, error) {
	logger := loggingpkg.OrNop(a.logger)
	if a.logger == nil {
		logger = loggingpkg.OrNop(table.Logger)
	}
	info := table.Application.Info()
	endpoints, err := endpointNames(table.Operations)
	if err != nil {
		return nil, err
	}

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	inst := &instance{cancel: cancel, logger: logger}

	svc, err := micro.AddService(a.nc, micro.Config{
		Name:        sanitizeName(info.Name),
		Version:     info.Version,
		Description: info.Description,
		Metadata:    info.Metadata,
		QueueGroup:  a.queueGroup,
		ErrorHandler: func(_ micro.Service, natsErr *micro.NATSError) {
			logger.Error("Micro service error", natsErr, loggingpkg.LogFields{"subject": natsErr.Subject})
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("contractflow: add micro service %q: %w", info.Name, err)
	}
	inst.svc = svc

	for i, route := range table.Operations {
		opts := []micro.EndpointOpt{
			micro.WithEndpointSubject(route.Pattern()),
			micro.WithEndpointMetadata(map[string]string{
				"contract":    route.Name(),
				"template":    route.Template(),
				"status_code": strconv.Itoa(route.Contract().StatusCode()),
			}),
		}
		if err := svc.AddEndpoint(endpoints[i], operationHandler(base, route, logger), opts...); err != nil {
			_ = inst.Stop(ctx)
			return nil, fmt.Errorf("contractflow: add endpoint %q: %w", route.Name(), err)
		}
	}

	for _, route := range table.Events {
		sub, err := a.subscribe(route.Pattern(), eventHandler(base, route, logger))
		if err != nil {
			_ = inst.Stop(ctx)
			return nil, fmt.Errorf("contractflow: subscribe %q: %w", route.Pattern(), err)
		}
		inst.subs = append(inst.subs, sub)
	}
	if err := a.nc.Flush(); err != nil {
		_ = inst.Stop(ctx)
		return nil, err
	}

	logger.Info("Micro service started", loggingpkg.LogFields{
		"service":    svc.Info().Name,
		"id":         svc.Info().ID,
		"operations": len(table.Operations),
		"events":     len(table.Events),
	})
	return inst, nil
}

func (a *Adapter) subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if a.queueGroup != "" {
		return a.nc.QueueSubscribe(subject, a.queueGroup, cb)
	}
	return a.nc.Subscribe(subject, cb)
}

func operationHandler(ctx context.Context, route *runtime.OperationRoute, logger loggingpkg.ServiceLogger) micro.Handler {
	return micro.HandlerFunc(func(req micro.Request) {
		in := &inboundRequest{req: req}
		err := route.Serve(ctx, in)
		if err == nil {
			return
		}
		fields := loggingpkg.LogFields{"operation": route.Name(), "subject": req.Subject()}
		if in.responded.Load() {
			logger.Error("Handler failed after responding", err, fields)
			return
		}
		logger.Error("Handler failed", err, fields)
		if respErr := in.RespondError(ctx, InternalErrorCode, InternalErrorDescription, nil, nil); respErr != nil {
			logger.Error("Failed to send error reply", respErr, fields)
		}
	})
}

func eventHandler(ctx context.Context, route *runtime.EventRoute, logger loggingpkg.ServiceLogger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		in := &inboundMessage{msg: msg, logger: logger}
		if err := route.Serve(ctx, in); err != nil {
			logger.Error("Event handler failed", err, loggingpkg.LogFields{
				"event":   route.Name(),
				"subject": msg.Subject,
			})
		}
	}
}

type instance struct {
	svc    micro.Service
	subs   []*nats.Subscription
	cancel context.CancelFunc
	logger loggingpkg.ServiceLogger
	once   sync.Once
	err    error
}

func (i *instance) Stop(context.Context) error {
	i.once.Do(func() {
		var errs []error
		for _, sub := range i.subs {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, err)
			}
		}
		if i.svc != nil {
			if err := i.svc.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		i.cancel()
		i.err = errors.Join(errs...)
		i.logger.Info("Micro service stopped", nil)
	})
	return i.err
}

type inboundRequest struct {
	req       micro.Request
	responded atomic.Bool
}

func (r *inboundRequest) Subject() string { return r.req.Subject() }

func (r *inboundRequest) Data() []byte { return r.req.Data() }

func (r *inboundRequest) Headers() metadatapkg.Metadata {
	return metadatapkg.FromNATS(nats.Header(r.req.Headers()))
}

func (r *inboundRequest) Respond(_ context.Context, data []byte, headers metadatapkg.Metadata) error {
	if !r.responded.CompareAndSwap(false, true) {
		return errspkg.ErrResponseAlreadySent
	}
	return r.req.Respond(data, micro.WithHeaders(micro.Headers(metadatapkg.ToNATS(headers))))
}

func (r *inboundRequest) RespondError(_ context.Context, code int, description string, data []byte, headers metadatapkg.Metadata) error {
	if !r.responded.CompareAndSwap(false, true) {
		return errspkg.ErrResponseAlreadySent
	}
	if description == "" {
		description = strconv.Itoa(code)
	}
	return r.req.Error(strconv.Itoa(code), description, data, micro.WithHeaders(micro.Headers(metadatapkg.ToNATS(headers))))
}

// inboundMessage is a core NATS event. Core NATS has no acknowledgements, so
// settlement only affects logging.
type inboundMessage struct {
	msg    *nats.Msg
	logger loggingpkg.ServiceLogger
}

func (m *inboundMessage) Subject() string { return m.msg.Subject }

func (m *inboundMessage) Data() []byte { return m.msg.Data }

func (m *inboundMessage) Headers() metadatapkg.Metadata { return metadatapkg.FromNATS(m.msg.Header) }

func (m *inboundMessage) Ack(context.Context) error { return nil }

func (m *inboundMessage) Nak(_ context.Context, delay time.Duration) error {
	m.logger.Debug("Core NATS message cannot be redelivered", loggingpkg.LogFields{
		"subject": m.msg.Subject,
		"delay":   delay.String(),
	})
	return nil
}

func (m *inboundMessage) Term(context.Context) error { return nil }

// endpointNames sanitises operation names into micro endpoint names and
// rejects two operations that end up with the same one.
func endpointNames(routes []*runtime.OperationRoute) ([]string, error) {
	names := make([]string, len(routes))
	owners := make(map[string]string, len(routes))
	for i, route := range routes {
		name := sanitizeName(route.Name())
		if prev, dup := owners[name]; dup {
			return nil, fmt.Errorf("%w: %q and %q both map to %q", errspkg.ErrDuplicateEndpoint, prev, route.Name(), name)
		}
		owners[name] = route.Name()
		names[i] = name
	}
	return names, nil
}

func sanitizeName(name string) string {
	return invalidName.ReplaceAllString(name, "_")
}
