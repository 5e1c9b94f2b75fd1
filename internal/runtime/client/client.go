// Package client sends contract requests and events over a Transport and
// decodes replies with the contract's schemas.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	idspkg "github.com/drblury/contractflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// DefaultTimeout bounds a request when neither the client nor the call sets one.
const DefaultTimeout = time.Second

// RawReply is a successful reply as received from the transport.
type RawReply struct {
	Data    []byte
	Headers metadatapkg.Metadata
}

// RawOperationError is an error reply as received from the transport.
// Transports return it from SendRequest.
type RawOperationError struct {
	Code        int
	Description string
	Data        []byte
	Headers     metadatapkg.Metadata
}

func (e *RawOperationError) Error() string {
	return fmt.Sprintf("contractflow: operation failed with %d: %s", e.Code, e.Description)
}

// OperationError is returned by Send when the server answered with an error
// reply and the call raises on errors.
type OperationError struct {
	Code        int
	Description string
	Data        []byte
	Headers     metadatapkg.Metadata
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Description)
}

func newOperationError(raw *RawOperationError) *OperationError {
	return &OperationError{
		Code:        raw.Code,
		Description: raw.Description,
		Data:        raw.Data,
		Headers:     raw.Headers.Clone(),
	}
}

// Transport moves encoded requests and events. Implementations return a
// *RawOperationError for error replies.
type Transport interface {
	SendRequest(ctx context.Context, subject string, payload []byte, headers metadatapkg.Metadata, timeout time.Duration) (*RawReply, error)
	SendEvent(ctx context.Context, subject string, payload []byte, headers metadatapkg.Metadata) error
}

// Option customises New.
type Option func(*Client)

// WithDefaultTimeout sets the timeout used by calls without WithTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(c *Client) { c.logger = loggingpkg.OrNop(logger) }
}

// WithoutRequestIDs stops the client from stamping a Request-Id header.
func WithoutRequestIDs() Option {
	return func(c *Client) { c.requestIDs = false }
}

// WithPropagator overrides the OpenTelemetry propagator used to inject trace
// context into outbound headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) { c.propagator = p }
}

// Client sends contract requests and events.
type Client struct {
	transport  Transport
	timeout    time.Duration
	logger     loggingpkg.ServiceLogger
	requestIDs bool
	propagator propagation.TextMapPropagator
}

// New returns a Client sending over transport.
func New(transport Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errspkg.ErrTransportRequired
	}
	c := &Client{
		transport:  transport,
		timeout:    DefaultTimeout,
		logger:     loggingpkg.Nop(),
		requestIDs: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Transport returns the underlying transport.
func (c *Client) Transport() Transport { return c.transport }

type callOptions struct {
	timeout time.Duration
	raise   bool
	headers metadatapkg.Metadata
}

// CallOption customises a single Send or Publish.
type CallOption func(*callOptions)

// WithTimeout overrides the client timeout for one request.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithRaiseOnError controls whether error replies are returned as
// *OperationError (the default) or as an error Reply.
func WithRaiseOnError(raise bool) CallOption {
	return func(o *callOptions) { o.raise = raise }
}

// WithHeaders adds headers to one call. They override request headers.
func WithHeaders(md metadatapkg.Metadata) CallOption {
	return func(o *callOptions) { o.headers = o.headers.WithAll(md) }
}

func (c *Client) callOptions(opts []CallOption) callOptions {
	o := callOptions{timeout: c.timeout, raise: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.timeout <= 0 {
		o.timeout = c.timeout
	}
	return o
}

func (c *Client) outboundHeaders(ctx context.Context, base metadatapkg.Metadata, extra metadatapkg.Metadata) metadatapkg.Metadata {
	headers := base.WithAll(extra)
	if c.requestIDs && headers[metadatapkg.HeaderRequestID] == "" {
		headers[metadatapkg.HeaderRequestID] = idspkg.CreateULID()
	}
	propagator := c.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	propagator.Inject(ctx, propagation.MapCarrier(headers))
	return headers
}

// Send encodes req, sends it and wraps the answer in a Reply. Error replies
// are returned as *OperationError unless WithRaiseOnError(false) is given.
func Send[P, T, R, E any](ctx context.Context, c *Client, req *contract.OperationRequest[P, T, R, E], opts ...CallOption) (*Reply[R, E], error) {
	if req == nil || req.Operation == nil {
		return nil, errspkg.ErrMissingPayload
	}
	o := c.callOptions(opts)

	data, err := req.Encode()
	if err != nil {
		return nil, err
	}
	headers := c.outboundHeaders(ctx, req.Headers, o.headers)

	c.logger.Debug("Sending request", loggingpkg.LogFields{
		"operation":  req.Operation.Name(),
		"subject":    req.Subject,
		"request_id": headers[metadatapkg.HeaderRequestID],
	})
	raw, err := c.transport.SendRequest(ctx, req.Subject, data, headers, o.timeout)
	if err != nil {
		var opErr *RawOperationError
		if !errors.As(err, &opErr) {
			return nil, err
		}
		reply := newErrorReply(req.Operation, opErr)
		if o.raise {
			return nil, reply.err
		}
		return reply, nil
	}
	return newReply(req.Operation, raw), nil
}

// Publish encodes pub and sends it as an event.
func Publish[P, T any](ctx context.Context, c *Client, pub *contract.EventPublication[P, T], opts ...CallOption) error {
	if pub == nil || pub.Event == nil {
		return errspkg.ErrMissingPayload
	}
	o := c.callOptions(opts)

	data, err := pub.Encode()
	if err != nil {
		return err
	}
	headers := c.outboundHeaders(ctx, pub.Headers, o.headers)

	c.logger.Debug("Publishing event", loggingpkg.LogFields{
		"event":   pub.Event.Name(),
		"subject": pub.Subject,
	})
	return c.transport.SendEvent(ctx, pub.Subject, data, headers)
}

// DecodeError decodes the error payload of an *OperationError returned by
// Send with op's error schema. An empty payload decodes to the zero value.
func DecodeError[P, T, R, E any](op *contract.Operation[P, T, R, E], err error) (E, error) {
	var zero E
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		return zero, errspkg.ErrNoError
	}
	return decodeErrorData(op, opErr.Data)
}

func decodeErrorData[P, T, R, E any](op *contract.Operation[P, T, R, E], data []byte) (E, error) {
	var zero E
	if len(data) == 0 && !op.ErrorSchema().IsUnit() {
		return zero, nil
	}
	return op.ErrorSchema().Decode(data)
}
