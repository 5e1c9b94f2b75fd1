package handlers

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
)

// OperationHandler serves requests for an operation. It must reply through
// req.Respond or req.RespondError, or return an error.
type OperationHandler[P, T, R, E any] func(ctx context.Context, req *Request[P, T, R, E]) error

// EventHandler consumes events. Returning nil acks the message and returning
// an error naks it, unless the handler settled the message itself.
type EventHandler[P, T any] func(ctx context.Context, msg *Message[P, T]) error

// OperationImplementation is a type serving one operation.
type OperationImplementation[P, T, R, E any] interface {
	Handle(ctx context.Context, req *Request[P, T, R, E]) error
}

// EventConsumer is a type consuming one event.
type EventConsumer[P, T any] interface {
	Consume(ctx context.Context, msg *Message[P, T]) error
}

// contractBinder is implemented by types embedding contract.Implementation.
type contractBinder interface {
	BindContract(c contract.Descriptor) error
}

// Binding attaches a handler to a contract.
type Binding interface {
	// Name identifies the handler in bind errors and documentation.
	Name() string
	Contract() contract.Descriptor
}

// OperationBinding serves raw requests for its operation.
type OperationBinding interface {
	Binding
	ServeRequest(ctx context.Context, in InboundRequest, logger loggingpkg.ServiceLogger) error
}

// EventBinding serves raw messages for its event.
type EventBinding interface {
	Binding
	ServeMessage(ctx context.Context, in InboundMessage, logger loggingpkg.ServiceLogger) error
}

type operationBinding[P, T, R, E any] struct {
	name    string
	op      *contract.Operation[P, T, R, E]
	handler OperationHandler[P, T, R, E]
}

// ImplementOperation binds a handler function to op.
func ImplementOperation[P, T, R, E any](op *contract.Operation[P, T, R, E], handler OperationHandler[P, T, R, E]) (OperationBinding, error) {
	if op == nil {
		return nil, errspkg.ErrComponentRequired
	}
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	return &operationBinding[P, T, R, E]{name: funcName(handler), op: op, handler: handler}, nil
}

// Implement binds impl to op. When impl embeds contract.Implementation it is
// marked as serving op, and binding it to a second contract fails.
func Implement[P, T, R, E any](op *contract.Operation[P, T, R, E], impl OperationImplementation[P, T, R, E]) (OperationBinding, error) {
	if op == nil {
		return nil, errspkg.ErrComponentRequired
	}
	if isNilHandler(impl) {
		return nil, errspkg.ErrHandlerRequired
	}
	if binder, ok := impl.(contractBinder); ok {
		if err := binder.BindContract(op); err != nil {
			return nil, err
		}
	}
	return &operationBinding[P, T, R, E]{name: fmt.Sprintf("%T", impl), op: op, handler: impl.Handle}, nil
}

func (b *operationBinding[P, T, R, E]) Name() string { return b.name }

func (b *operationBinding[P, T, R, E]) Contract() contract.Descriptor { return b.op }

// ServeRequest decodes in, runs the handler and maps failures. Errors not
// classified by the operation's mappings are returned to the adapter.
func (b *operationBinding[P, T, R, E]) ServeRequest(ctx context.Context, in InboundRequest, logger loggingpkg.ServiceLogger) error {
	logger = loggingpkg.OrNop(logger)
	req, err := NewRequest(b.op, in, logger)
	if err == nil {
		err = b.handler(ctx, req)
		if err == nil && !req.Responded() {
			err = fmt.Errorf("%w: operation %q", errspkg.ErrNoResponse, b.op.Name())
		}
	}
	if err == nil {
		return nil
	}
	if req != nil && req.Responded() {
		return err
	}

	mapping, ok := b.op.Classify(err)
	if !ok {
		return err
	}
	if req == nil {
		req = &Request[P, T, R, E]{op: b.op, inbound: in}
	}

	var data []byte
	if mapping.HasFormatter() && !b.op.ErrorSchema().IsUnit() {
		data, err = b.op.ErrorSchema().Encode(mapping.Format(err))
		if err != nil {
			return err
		}
	}
	logger.Debug("Mapped handler error", loggingpkg.LogFields{
		"operation": b.op.Name(),
		"subject":   in.Subject(),
		"code":      mapping.Code(),
	})
	return req.respondError(ctx, mapping.Code(), mapping.Description(), data, nil)
}

type eventBinding[P, T any] struct {
	name    string
	ev      *contract.Event[P, T]
	handler EventHandler[P, T]
}

// ConsumeEvent binds a handler function to ev.
func ConsumeEvent[P, T any](ev *contract.Event[P, T], handler EventHandler[P, T]) (EventBinding, error) {
	if ev == nil {
		return nil, errspkg.ErrComponentRequired
	}
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	return &eventBinding[P, T]{name: funcName(handler), ev: ev, handler: handler}, nil
}

// Consume binds consumer to ev.
func Consume[P, T any](ev *contract.Event[P, T], consumer EventConsumer[P, T]) (EventBinding, error) {
	if ev == nil {
		return nil, errspkg.ErrComponentRequired
	}
	if isNilHandler(consumer) {
		return nil, errspkg.ErrHandlerRequired
	}
	if binder, ok := consumer.(contractBinder); ok {
		if err := binder.BindContract(ev); err != nil {
			return nil, err
		}
	}
	return &eventBinding[P, T]{name: fmt.Sprintf("%T", consumer), ev: ev, handler: consumer.Consume}, nil
}

func (b *eventBinding[P, T]) Name() string { return b.name }

func (b *eventBinding[P, T]) Contract() contract.Descriptor { return b.ev }

// ServeMessage decodes in and runs the handler. Undecodable messages are
// terminated. Unsettled messages are acked on success and naked on failure.
func (b *eventBinding[P, T]) ServeMessage(ctx context.Context, in InboundMessage, logger loggingpkg.ServiceLogger) error {
	logger = loggingpkg.OrNop(logger)
	msg, err := NewMessage(b.ev, in, logger)
	if err != nil {
		if termErr := in.Term(ctx); termErr != nil {
			logger.Error("Failed to terminate undecodable message", termErr, loggingpkg.LogFields{
				"event":   b.ev.Name(),
				"subject": in.Subject(),
			})
		}
		return err
	}

	err = b.handler(ctx, msg)
	if msg.Settlement() != Pending {
		return err
	}
	if err != nil {
		if nakErr := msg.Nak(ctx, 0); nakErr != nil {
			logger.Error("Failed to nak message", nakErr, loggingpkg.LogFields{"event": b.ev.Name()})
		}
		return err
	}
	return msg.Ack(ctx)
}

func funcName(fn any) string {
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		return f.Name()
	}
	return fmt.Sprintf("%T", fn)
}

func isNilHandler(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
