package micro

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/drblury/contractflow/internal/runtime/client"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// ClientTransport sends requests and events over a NATS connection. Error
// replies of micro endpoints are returned as *client.RawOperationError.
type ClientTransport struct {
	nc *nats.Conn
}

var _ client.Transport = (*ClientTransport)(nil)

// NewClientTransport wraps nc.
func NewClientTransport(nc *nats.Conn) (*ClientTransport, error) {
	if nc == nil {
		return nil, errspkg.ErrTransportRequired
	}
	return &ClientTransport{nc: nc}, nil
}

func (t *ClientTransport) SendRequest(ctx context.Context, subject string, payload []byte, headers metadatapkg.Metadata, timeout time.Duration) (*client.RawReply, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	msg, err := t.nc.RequestMsgWithContext(ctx, &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  metadatapkg.ToNATS(headers),
	})
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("contractflow: no responders on %q: %w", subject, err)
		}
		return nil, err
	}

	replyHeaders := metadatapkg.FromNATS(msg.Header)
	if raw := msg.Header.Get(micro.ErrorCodeHeader); raw != "" {
		code, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return nil, fmt.Errorf("contractflow: invalid error code %q from %q: %w", raw, subject, convErr)
		}
		return nil, &client.RawOperationError{
			Code:        code,
			Description: msg.Header.Get(micro.ErrorHeader),
			Data:        msg.Data,
			Headers:     replyHeaders,
		}
	}
	return &client.RawReply{Data: msg.Data, Headers: replyHeaders}, nil
}

func (t *ClientTransport) SendEvent(_ context.Context, subject string, payload []byte, headers metadatapkg.Metadata) error {
	return t.nc.PublishMsg(&nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  metadatapkg.ToNATS(headers),
	})
}
