package contracttest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/drblury/contractflow/internal/runtime/client"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// SentRequest is a request captured by RecordingTransport.
type SentRequest struct {
	Subject string
	Payload []byte
	Headers metadatapkg.Metadata
	Timeout time.Duration
}

// SentEvent is an event captured by RecordingTransport.
type SentEvent struct {
	Subject string
	Payload []byte
	Headers metadatapkg.Metadata
}

// Responder scripts the answer to a recorded request. Return a
// *client.RawOperationError for error replies.
type Responder func(ctx context.Context, req SentRequest) (*client.RawReply, error)

// RecordingTransport is a client.Transport that records everything sent.
// Requests are answered by Responder, or fail with ErrNoResponse without one.
type RecordingTransport struct {
	Responder Responder

	mu       sync.Mutex
	requests []SentRequest
	events   []SentEvent
}

var _ client.Transport = (*RecordingTransport)(nil)

func (t *RecordingTransport) SendRequest(ctx context.Context, subject string, payload []byte, headers metadatapkg.Metadata, timeout time.Duration) (*client.RawReply, error) {
	req := SentRequest{Subject: subject, Payload: slices.Clone(payload), Headers: headers.Clone(), Timeout: timeout}
	t.mu.Lock()
	t.requests = append(t.requests, req)
	responder := t.Responder
	t.mu.Unlock()

	if responder == nil {
		return nil, errspkg.ErrNoResponse
	}
	return responder(ctx, req)
}

func (t *RecordingTransport) SendEvent(_ context.Context, subject string, payload []byte, headers metadatapkg.Metadata) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, SentEvent{Subject: subject, Payload: slices.Clone(payload), Headers: headers.Clone()})
	return nil
}

// Requests returns the recorded requests in send order.
func (t *RecordingTransport) Requests() []SentRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.requests)
}

// Events returns the recorded events in send order.
func (t *RecordingTransport) Events() []SentEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// Reset forgets everything recorded so far.
func (t *RecordingTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = nil
	t.events = nil
}

// Reply is a Responder answering every request with data.
func Reply(data []byte, headers metadatapkg.Metadata) Responder {
	return func(context.Context, SentRequest) (*client.RawReply, error) {
		return &client.RawReply{Data: slices.Clone(data), Headers: headers.Clone()}, nil
	}
}

// ReplyError is a Responder answering every request with an error reply.
func ReplyError(code int, description string, data []byte) Responder {
	return func(context.Context, SentRequest) (*client.RawReply, error) {
		return nil, &client.RawOperationError{Code: code, Description: description, Data: slices.Clone(data), Headers: metadatapkg.Metadata{}}
	}
}
