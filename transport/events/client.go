package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/contractflow/internal/runtime/client"
	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	idspkg "github.com/drblury/contractflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
	"github.com/drblury/contractflow/transport"
)

// Resolver finds the event contract a concrete subject belongs to.
// *app.Application implements it.
type Resolver interface {
	MatchEvent(subject string) (contract.Descriptor, error)
}

// ClientTransport is a client.Transport publishing events to a broker.
// Requests are not supported.
type ClientTransport struct {
	publisher message.Publisher
	resolver  Resolver
	caps      transport.Capabilities
}

var _ client.Transport = (*ClientTransport)(nil)

// NewClientTransport publishes through tr.Publisher. Brokers without
// wildcards need resolver to map subjects to contract topics.
func NewClientTransport(tr transport.Transport, resolver Resolver, opts ...Option) (*ClientTransport, error) {
	if tr.Publisher == nil {
		return nil, errspkg.ErrTransportRequired
	}
	o := buildOptions(tr, opts)
	if resolver == nil && !o.caps.SupportsWildcards {
		return nil, fmt.Errorf("%w: %s has no wildcards and needs an application to resolve topics",
			errspkg.ErrConfigRequired, o.caps.Name)
	}
	pub := tr.Publisher
	if builder, ok := o.metricsBuilder(); ok {
		decorated, err := builder.DecoratePublisher(pub)
		if err != nil {
			return nil, fmt.Errorf("contractflow: decorate publisher: %w", err)
		}
		pub = decorated
	}
	return &ClientTransport{publisher: pub, resolver: resolver, caps: o.caps}, nil
}

// SendEvent publishes payload with the subject in the Contract-Subject
// header. The Request-Id header, when present, becomes the message UUID.
// Payloads over the broker's message size fail before publishing.
func (t *ClientTransport) SendEvent(ctx context.Context, subject string, payload []byte, headers metadatapkg.Metadata) error {
	if !t.caps.Fits(len(payload)) {
		return fmt.Errorf("%w: %d bytes on %s (max %d)", errspkg.ErrPayloadTooLarge, len(payload), t.caps.Name, t.caps.MaxMessageSize)
	}
	topic, err := t.topic(subject)
	if err != nil {
		return err
	}
	msg := message.NewMessage(idspkg.OrNew(headers[metadatapkg.HeaderRequestID]), payload)
	msg.Metadata = metadatapkg.ToWatermill(headers.With(metadatapkg.HeaderContractSubject, subject))
	msg.SetContext(ctx)

	if err := t.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("contractflow: publish %q: %w", subject, err)
	}
	return nil
}

// SendRequest always fails; brokers carry events only.
func (t *ClientTransport) SendRequest(context.Context, string, []byte, metadatapkg.Metadata, time.Duration) (*client.RawReply, error) {
	return nil, fmt.Errorf("%w on %s", errspkg.ErrRequestReplyUnsupported, t.caps.Name)
}

func (t *ClientTransport) topic(subject string) (string, error) {
	if t.caps.SupportsWildcards {
		return subject, nil
	}
	event, err := t.resolver.MatchEvent(subject)
	if err != nil {
		return "", err
	}
	return TopicName(event.Name()), nil
}
