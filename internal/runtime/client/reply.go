package client

import (
	"sync"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// Reply is the answer to one request. Payloads are decoded on first access and
// cached.
type Reply[R, E any] struct {
	decodeReply func([]byte) (R, error)
	decodeError func([]byte) (E, error)

	raw *RawReply
	err *OperationError

	mu        sync.Mutex
	decoded   bool
	data      R
	errData   E
	decodeErr error
}

func newReply[P, T, R, E any](op *contract.Operation[P, T, R, E], raw *RawReply) *Reply[R, E] {
	return &Reply[R, E]{
		decodeReply: op.ReplySchema().Decode,
		raw:         raw,
	}
}

func newErrorReply[P, T, R, E any](op *contract.Operation[P, T, R, E], raw *RawOperationError) *Reply[R, E] {
	return &Reply[R, E]{
		decodeError: func(data []byte) (E, error) { return decodeErrorData(op, data) },
		err:         newOperationError(raw),
	}
}

// IsError reports whether the server answered with an error reply.
func (r *Reply[R, E]) IsError() bool { return r.err != nil }

// Err returns the *OperationError of an error reply, or nil.
func (r *Reply[R, E]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Headers returns the reply headers.
func (r *Reply[R, E]) Headers() metadatapkg.Metadata {
	if r.err != nil {
		return r.err.Headers.Clone()
	}
	return r.raw.Headers.Clone()
}

// Data decodes the reply payload. On an error reply it returns the
// *OperationError.
func (r *Reply[R, E]) Data() (R, error) {
	if r.err != nil {
		var zero R
		return zero, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.decoded {
		r.data, r.decodeErr = r.decodeReply(r.raw.Data)
		r.decoded = true
	}
	return r.data, r.decodeErr
}

// ErrorData decodes the error payload. It returns ErrNoError for successful
// replies.
func (r *Reply[R, E]) ErrorData() (E, error) {
	if r.err == nil {
		var zero E
		return zero, errspkg.ErrNoError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.decoded {
		r.errData, r.decodeErr = r.decodeError(r.err.Data)
		r.decoded = true
	}
	return r.errData, r.decodeErr
}

// ErrorCode returns the error code, or ErrNoError for successful replies.
func (r *Reply[R, E]) ErrorCode() (int, error) {
	if r.err == nil {
		return 0, errspkg.ErrNoError
	}
	return r.err.Code, nil
}

// ErrorDescription returns the error description, or ErrNoError for
// successful replies.
func (r *Reply[R, E]) ErrorDescription() (string, error) {
	if r.err == nil {
		return "", errspkg.ErrNoError
	}
	return r.err.Description, nil
}
