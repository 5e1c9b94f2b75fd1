package contract

import (
	"reflect"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/metadata"
)

type requestOptions struct {
	headers metadata.Metadata
}

// RequestOption customises an outbound request or publication.
type RequestOption func(*requestOptions)

// WithHeaders merges md into the outbound headers.
func WithHeaders(md metadata.Metadata) RequestOption {
	return func(o *requestOptions) { o.headers = o.headers.WithAll(md) }
}

func buildHeaders(contentType string, opts []RequestOption) metadata.Metadata {
	cfg := requestOptions{headers: metadata.Metadata{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if contentType != "" {
		cfg.headers[metadata.HeaderContentType] = contentType
	}
	return cfg.headers
}

// OperationRequest is a fully resolved outbound request.
type OperationRequest[P, T, R, E any] struct {
	Operation *Operation[P, T, R, E]
	Subject   string
	Params    P
	Payload   T
	Headers   metadata.Metadata
}

// Encode serialises the payload with the operation's payload schema.
func (r *OperationRequest[P, T, R, E]) Encode() ([]byte, error) {
	return r.Operation.payload.Encode(r.Payload)
}

// Request renders the subject for params and pairs it with payload. A nil
// payload is rejected unless the payload schema is unit.
func (o *Operation[P, T, R, E]) Request(params P, payload T, opts ...RequestOption) (*OperationRequest[P, T, R, E], error) {
	if o.payload.IsUnit() {
		var zero T
		payload = zero
	} else if isNil(payload) {
		return nil, errspkg.ErrMissingPayload
	}
	subject, err := o.addr.Render(params)
	if err != nil {
		return nil, err
	}
	return &OperationRequest[P, T, R, E]{
		Operation: o,
		Subject:   subject,
		Params:    params,
		Payload:   payload,
		Headers:   buildHeaders(o.payload.ContentType(), opts),
	}, nil
}

// RequestEmpty builds a request for an operation with a unit payload.
func (o *Operation[P, T, R, E]) RequestEmpty(params P, opts ...RequestOption) (*OperationRequest[P, T, R, E], error) {
	if !o.payload.IsUnit() {
		return nil, errspkg.ErrMissingPayload
	}
	var zero T
	return o.Request(params, zero, opts...)
}

// EventPublication is a fully resolved outbound event.
type EventPublication[P, T any] struct {
	Event   *Event[P, T]
	Subject string
	Params  P
	Payload T
	Headers metadata.Metadata
}

// Encode serialises the payload with the event's payload schema.
func (p *EventPublication[P, T]) Encode() ([]byte, error) {
	return p.Event.payload.Encode(p.Payload)
}

// Publish renders the subject for params and pairs it with payload.
func (e *Event[P, T]) Publish(params P, payload T, opts ...RequestOption) (*EventPublication[P, T], error) {
	if e.payload.IsUnit() {
		var zero T
		payload = zero
	} else if isNil(payload) {
		return nil, errspkg.ErrMissingPayload
	}
	subject, err := e.addr.Render(params)
	if err != nil {
		return nil, err
	}
	return &EventPublication[P, T]{
		Event:   e,
		Subject: subject,
		Params:  params,
		Payload: payload,
		Headers: buildHeaders(e.payload.ContentType(), opts),
	}, nil
}

// PublishEmpty builds a publication for an event with a unit payload.
func (e *Event[P, T]) PublishEmpty(params P, opts ...RequestOption) (*EventPublication[P, T], error) {
	if !e.payload.IsUnit() {
		return nil, errspkg.ErrMissingPayload
	}
	var zero T
	return e.Publish(params, zero, opts...)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
