package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
)

// Settlement is the acknowledgement state of an inbound message.
type Settlement uint8

const (
	Pending Settlement = iota
	Acked
	Nacked
	Termed
)

func (s Settlement) String() string {
	switch s {
	case Acked:
		return "acked"
	case Nacked:
		return "nacked"
	case Termed:
		return "termed"
	}
	return "pending"
}

// Message is a decoded inbound event for Event[P, T].
type Message[P, T any] struct {
	Envelope

	ev      *contract.Event[P, T]
	inbound InboundMessage
	params  P
	payload T

	mu    sync.Mutex
	state Settlement
}

// NewMessage parses the subject and decodes the payload of in.
func NewMessage[P, T any](ev *contract.Event[P, T], in InboundMessage, logger loggingpkg.ServiceLogger) (*Message[P, T], error) {
	params, err := ev.TypedAddress().Parse(in.Subject())
	if err != nil {
		return nil, err
	}
	payload, err := ev.PayloadSchema().Decode(in.Data())
	if err != nil {
		return nil, err
	}
	return &Message[P, T]{
		Envelope: newEnvelope(in.Headers(), logger, in.Subject()),
		ev:      ev,
		inbound: in,
		params:  params,
		payload: payload,
	}, nil
}

func (m *Message[P, T]) Params() P { return m.params }

func (m *Message[P, T]) Payload() T { return m.payload }

func (m *Message[P, T]) Subject() string { return m.inbound.Subject() }

func (m *Message[P, T]) Event() *contract.Event[P, T] { return m.ev }

// Settlement returns the current acknowledgement state.
func (m *Message[P, T]) Settlement() Settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ack acknowledges the message.
func (m *Message[P, T]) Ack(ctx context.Context) error {
	return m.settle(Acked, func() error { return m.inbound.Ack(ctx) })
}

// Nak asks for redelivery after delay.
func (m *Message[P, T]) Nak(ctx context.Context, delay time.Duration) error {
	return m.settle(Nacked, func() error { return m.inbound.Nak(ctx, delay) })
}

// Term stops redelivery of the message.
func (m *Message[P, T]) Term(ctx context.Context) error {
	return m.settle(Termed, func() error { return m.inbound.Term(ctx) })
}

func (m *Message[P, T]) settle(to Settlement, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Pending {
		return errspkg.ErrAlreadyAcknowledged
	}
	if err := fn(); err != nil {
		return err
	}
	m.state = to
	return nil
}
