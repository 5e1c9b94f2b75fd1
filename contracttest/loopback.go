package contracttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/drblury/contractflow/internal/runtime"
	"github.com/drblury/contractflow/internal/runtime/client"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

const (
	internalErrorCode        = 500
	internalErrorDescription = "Internal Server Error"
)

// Loopback is both a runtime.Adapter and a client.Transport. Requests and
// events sent through it are dispatched in-process to the table it serves,
// with the same reply rules as a network adapter: an unmapped handler error
// becomes a 500 error reply.
type Loopback struct {
	mu       sync.RWMutex
	table    *runtime.DispatchTable
	logger   loggingpkg.ServiceLogger
	messages []*StubMessage
}

var (
	_ runtime.Adapter  = (*Loopback)(nil)
	_ client.Transport = (*Loopback)(nil)
)

func NewLoopback() *Loopback { return &Loopback{} }

// Serve starts dispatching to table until the returned instance stops.
func (l *Loopback) Serve(_ context.Context, table *runtime.DispatchTable) (runtime.Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.table != nil {
		return nil, errspkg.ErrAlreadyStarted
	}
	l.table = table
	l.logger = loggingpkg.OrNop(table.Logger)
	return runtime.InstanceFunc(func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.table = nil
		return nil
	}), nil
}

func (l *Loopback) current() (*runtime.DispatchTable, loggingpkg.ServiceLogger, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.table == nil {
		return nil, nil, errspkg.ErrNotBound
	}
	return l.table, l.logger, nil
}

// SendRequest dispatches to the first operation whose template matches
// subject, bounded by timeout.
func (l *Loopback) SendRequest(ctx context.Context, subject string, payload []byte, headers metadatapkg.Metadata, timeout time.Duration) (*client.RawReply, error) {
	table, logger, err := l.current()
	if err != nil {
		return nil, err
	}
	var route *runtime.OperationRoute
	for _, r := range table.Operations {
		if r.Contract().Address().Matches(subject) {
			route = r
			break
		}
	}
	if route == nil {
		return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownSubject, subject)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	in := NewStubRequest(subject, payload, headers)
	if err := route.Serve(ctx, in); err != nil && !in.Responded() {
		logger.Error("Handler failed", err, loggingpkg.LogFields{"operation": route.Name(), "subject": subject})
		_ = in.RespondError(ctx, internalErrorCode, internalErrorDescription, nil, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return in.Response()
}

// SendEvent delivers the event to every event route matching subject.
// Handler failures are logged; the message settlement is kept for
// inspection through Messages.
func (l *Loopback) SendEvent(ctx context.Context, subject string, payload []byte, headers metadatapkg.Metadata) error {
	table, logger, err := l.current()
	if err != nil {
		return err
	}
	for _, route := range table.Events {
		if !route.Contract().Address().Matches(subject) {
			continue
		}
		in := NewStubMessage(subject, payload, headers)
		l.mu.Lock()
		l.messages = append(l.messages, in)
		l.mu.Unlock()
		if err := route.Serve(ctx, in); err != nil {
			logger.Error("Event handler failed", err, loggingpkg.LogFields{"event": route.Name(), "subject": subject})
		}
	}
	return nil
}

// Messages returns every delivered event message in delivery order.
func (l *Loopback) Messages() []*StubMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*StubMessage, len(l.messages))
	copy(out, l.messages)
	return out
}
