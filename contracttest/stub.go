// Package contracttest provides in-memory stand-ins for transports, inbound
// requests and inbound messages, so handlers and clients can be exercised
// without a broker.
package contracttest

import (
	"context"
	"sync"
	"time"

	"github.com/drblury/contractflow/internal/runtime/client"
	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// StubRequest is a handlers.InboundRequest that records the reply.
type StubRequest struct {
	subject string
	data    []byte
	headers metadatapkg.Metadata

	mu               sync.Mutex
	responded        bool
	failed           bool
	ResponseData     []byte
	ResponseHeaders  metadatapkg.Metadata
	ErrorCode        int
	ErrorDescription string
	ErrorData        []byte
}

var _ handlers.InboundRequest = (*StubRequest)(nil)

// NewStubRequest returns a request for subject carrying data.
func NewStubRequest(subject string, data []byte, headers metadatapkg.Metadata) *StubRequest {
	return &StubRequest{subject: subject, data: data, headers: headers.Clone()}
}

func (r *StubRequest) Subject() string { return r.subject }

func (r *StubRequest) Data() []byte { return r.data }

func (r *StubRequest) Headers() metadatapkg.Metadata { return r.headers }

func (r *StubRequest) Respond(_ context.Context, data []byte, headers metadatapkg.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded {
		return errspkg.ErrResponseAlreadySent
	}
	r.responded = true
	r.ResponseData = data
	r.ResponseHeaders = headers.Clone()
	return nil
}

func (r *StubRequest) RespondError(_ context.Context, code int, description string, data []byte, headers metadatapkg.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded {
		return errspkg.ErrResponseAlreadySent
	}
	r.responded = true
	r.failed = true
	r.ErrorCode = code
	r.ErrorDescription = description
	r.ErrorData = data
	r.ResponseHeaders = headers.Clone()
	return nil
}

// Responded reports whether a reply or error reply was sent.
func (r *StubRequest) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responded
}

// Response returns the recorded reply the way a transport would: a RawReply
// on success, a *client.RawOperationError for error replies and
// ErrNoResponse when nothing was sent.
func (r *StubRequest) Response() (*client.RawReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !r.responded:
		return nil, errspkg.ErrNoResponse
	case r.failed:
		return nil, &client.RawOperationError{
			Code:        r.ErrorCode,
			Description: r.ErrorDescription,
			Data:        r.ErrorData,
			Headers:     r.ResponseHeaders.Clone(),
		}
	}
	return &client.RawReply{Data: r.ResponseData, Headers: r.ResponseHeaders.Clone()}, nil
}

// StubMessage is a handlers.InboundMessage that records its settlement.
// Settling twice fails with ErrAlreadyAcknowledged.
type StubMessage struct {
	subject string
	data    []byte
	headers metadatapkg.Metadata

	mu       sync.Mutex
	state    handlers.Settlement
	nakDelay time.Duration
}

var _ handlers.InboundMessage = (*StubMessage)(nil)

// NewStubMessage returns a pending message for subject carrying data.
func NewStubMessage(subject string, data []byte, headers metadatapkg.Metadata) *StubMessage {
	return &StubMessage{subject: subject, data: data, headers: headers.Clone()}
}

func (m *StubMessage) Subject() string { return m.subject }

func (m *StubMessage) Data() []byte { return m.data }

func (m *StubMessage) Headers() metadatapkg.Metadata { return m.headers }

func (m *StubMessage) Ack(context.Context) error { return m.settle(handlers.Acked, 0) }

func (m *StubMessage) Nak(_ context.Context, delay time.Duration) error {
	return m.settle(handlers.Nacked, delay)
}

func (m *StubMessage) Term(context.Context) error { return m.settle(handlers.Termed, 0) }

func (m *StubMessage) settle(to handlers.Settlement, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != handlers.Pending {
		return errspkg.ErrAlreadyAcknowledged
	}
	m.state = to
	m.nakDelay = delay
	return nil
}

// State returns the current settlement.
func (m *StubMessage) State() handlers.Settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StubMessage) Acknowledged() bool { return m.State() == handlers.Acked }

func (m *StubMessage) Nacked() bool { return m.State() == handlers.Nacked }

func (m *StubMessage) Termed() bool { return m.State() == handlers.Termed }

// NakDelay is the redelivery delay requested by the last Nak.
func (m *StubMessage) NakDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nakDelay
}

// MakeRequest encodes req into a StubRequest and decodes it back into the
// typed request a handler receives.
func MakeRequest[P, T, R, E any](req *contract.OperationRequest[P, T, R, E]) (*handlers.Request[P, T, R, E], *StubRequest, error) {
	if req == nil || req.Operation == nil {
		return nil, nil, errspkg.ErrMissingPayload
	}
	data, err := req.Encode()
	if err != nil {
		return nil, nil, err
	}
	stub := NewStubRequest(req.Subject, data, req.Headers)
	typed, err := handlers.NewRequest(req.Operation, stub, loggingpkg.Nop())
	if err != nil {
		return nil, nil, err
	}
	return typed, stub, nil
}

// MakeMessage encodes pub into a StubMessage and decodes it back into the
// typed message a handler receives.
func MakeMessage[P, T any](pub *contract.EventPublication[P, T]) (*handlers.Message[P, T], *StubMessage, error) {
	if pub == nil || pub.Event == nil {
		return nil, nil, errspkg.ErrMissingPayload
	}
	data, err := pub.Encode()
	if err != nil {
		return nil, nil, err
	}
	stub := NewStubMessage(pub.Subject, data, pub.Headers)
	typed, err := handlers.NewMessage(pub.Event, stub, loggingpkg.Nop())
	if err != nil {
		return nil, nil, err
	}
	return typed, stub, nil
}

// DecodeReply decodes the successful reply recorded by stub with op's reply
// schema.
func DecodeReply[P, T, R, E any](op *contract.Operation[P, T, R, E], stub *StubRequest) (R, error) {
	var zero R
	raw, err := stub.Response()
	if err != nil {
		return zero, err
	}
	return op.ReplySchema().Decode(raw.Data)
}
