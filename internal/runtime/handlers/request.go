package handlers

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// Request is a decoded inbound request for operation Operation[P, T, R, E].
type Request[P, T, R, E any] struct {
	Envelope

	op        *contract.Operation[P, T, R, E]
	inbound   InboundRequest
	params    P
	payload   T
	responded atomic.Bool
}

// NewRequest parses the subject and decodes the payload of in. Parse failures
// are address errors; payload failures are DecodeErrors.
func NewRequest[P, T, R, E any](op *contract.Operation[P, T, R, E], in InboundRequest, logger loggingpkg.ServiceLogger) (*Request[P, T, R, E], error) {
	params, err := op.TypedAddress().Parse(in.Subject())
	if err != nil {
		return nil, err
	}
	payload, err := op.PayloadSchema().Decode(in.Data())
	if err != nil {
		return nil, err
	}
	return &Request[P, T, R, E]{
		Envelope: newEnvelope(in.Headers(), logger, in.Subject()),
		op:      op,
		inbound: in,
		params:  params,
		payload: payload,
	}, nil
}

func (r *Request[P, T, R, E]) Params() P { return r.params }

func (r *Request[P, T, R, E]) Payload() T { return r.payload }

func (r *Request[P, T, R, E]) Subject() string { return r.inbound.Subject() }

func (r *Request[P, T, R, E]) Operation() *contract.Operation[P, T, R, E] { return r.op }

// Responded reports whether a reply or error reply was sent.
func (r *Request[P, T, R, E]) Responded() bool { return r.responded.Load() }

// Respond encodes reply with the reply schema and sends it with the
// operation's status code.
func (r *Request[P, T, R, E]) Respond(ctx context.Context, reply R, headers metadatapkg.Metadata) error {
	data, err := r.op.ReplySchema().Encode(reply)
	if err != nil {
		return err
	}
	out := withContentType(headers, r.op.ReplySchema().ContentType())
	out[metadatapkg.HeaderStatusCode] = strconv.Itoa(r.op.StatusCode())
	if !r.responded.CompareAndSwap(false, true) {
		return errspkg.ErrResponseAlreadySent
	}
	return r.inbound.Respond(ctx, data, out)
}

// RespondError encodes payload with the error schema and sends an error reply.
func (r *Request[P, T, R, E]) RespondError(ctx context.Context, code int, description string, payload E, headers metadatapkg.Metadata) error {
	data, err := r.op.ErrorSchema().Encode(payload)
	if err != nil {
		return err
	}
	return r.respondError(ctx, code, description, data, headers)
}

func (r *Request[P, T, R, E]) respondError(ctx context.Context, code int, description string, data []byte, headers metadatapkg.Metadata) error {
	out := headers.Clone()
	if len(data) > 0 {
		out = withContentType(headers, r.op.ErrorSchema().ContentType())
	}
	if !r.responded.CompareAndSwap(false, true) {
		return errspkg.ErrResponseAlreadySent
	}
	return r.inbound.RespondError(ctx, code, description, data, out)
}

func withContentType(headers metadatapkg.Metadata, contentType string) metadatapkg.Metadata {
	out := headers.Clone()
	if contentType != "" {
		out[metadatapkg.HeaderContentType] = contentType
	}
	return out
}
