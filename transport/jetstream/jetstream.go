// Package jetstream provides a durable NATS JetStream transport for the events
// adapter. Topics are subjects inside one stream, so event patterns with `*`
// tokens become filtered pull consumers.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	idspkg "github.com/drblury/contractflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
	"github.com/drblury/contractflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultStreamName prefixes every topic subject.
	DefaultStreamName = "CONTRACTFLOW"

	// DefaultMaxDeliver is the default max delivery attempts.
	DefaultMaxDeliver = 3

	// DefaultAckWait is the default ack wait timeout.
	DefaultAckWait = 30 * time.Second

	// DefaultMaxAge bounds how long the stream keeps events.
	DefaultMaxAge = 7 * 24 * time.Hour

	fetchBatch = 10
	fetchWait  = time.Second
)

var invalidConsumerChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

var ErrClosed = errors.New("contractflow: jetstream transport is closed")

func init() { Register() }

// Register adds the transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build creates a JetStream transport from the NATS URL. Replicas sharing a
// queue group share durable consumers.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if cfg == nil {
		return transport.Transport{}, errspkg.ErrConfigRequired
	}
	t, err := New(Config{
		URL:        cfg.GetNATSURL(),
		QueueGroup: cfg.GetQueueGroup(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{Publisher: t, Subscriber: t}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Config holds JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL. Ignored when Conn is set.
	URL string

	// Conn reuses an existing connection. The transport does not close it.
	Conn *nats.Conn

	// StreamName is the JetStream stream; defaults to DefaultStreamName.
	StreamName string

	// QueueGroup prefixes durable consumer names.
	QueueGroup string

	MaxDeliver int
	AckWait    time.Duration
	MaxAge     time.Duration

	// Replicas is the number of stream replicas (for clustering).
	Replicas int

	// RetentionPolicy: "limits" (default), "interest", or "workqueue".
	RetentionPolicy string
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Transport implements message.Publisher and message.Subscriber on JetStream.
type Transport struct {
	nc      *nats.Conn
	ownConn bool
	js      nats.JetStreamContext
	config  Config
	logger  watermill.LoggerAdapter

	subMu         sync.Mutex
	subscriptions []*nats.Subscription

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

var (
	_ message.Publisher              = (*Transport)(nil)
	_ message.Subscriber             = (*Transport)(nil)
	_ transport.CapabilitiesProvider = (*Transport)(nil)
)

// New connects and ensures the stream exists.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, ownConn := cfg.Conn, false
	if nc == nil {
		var err error
		nc, err = nats.Connect(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("contractflow: connect to nats: %w", err)
		}
		ownConn = true
	}

	js, err := nc.JetStream()
	if err != nil {
		if ownConn {
			nc.Close()
		}
		return nil, fmt.Errorf("contractflow: jetstream context: %w", err)
	}

	t := &Transport{
		nc:      nc,
		ownConn: ownConn,
		js:      js,
		config:  cfg,
		logger:  logger,
		closed:  make(chan struct{}),
	}
	if err := t.ensureStream(); err != nil {
		if ownConn {
			nc.Close()
		}
		return nil, err
	}
	return t, nil
}

func (t *Transport) ensureStream() error {
	streamCfg := &nats.StreamConfig{
		Name:     t.config.StreamName,
		Subjects: []string{t.config.StreamName + ".>"},
		MaxAge:   t.config.MaxAge,
		Replicas: t.config.Replicas,
	}
	switch t.config.RetentionPolicy {
	case "interest":
		streamCfg.Retention = nats.InterestPolicy
	case "workqueue":
		streamCfg.Retention = nats.WorkQueuePolicy
	default:
		streamCfg.Retention = nats.LimitsPolicy
	}

	_, err := t.js.AddStream(streamCfg)
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		_, err = t.js.UpdateStream(streamCfg)
	}
	if err != nil {
		return fmt.Errorf("contractflow: ensure stream %q: %w", t.config.StreamName, err)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Publish stores messages in the stream. The message UUID becomes the
// JetStream message ID, so republishing the same message is deduplicated.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return ErrClosed
	}
	subject := t.subject(topic)
	for _, msg := range messages {
		headers := metadatapkg.ToNATS(metadatapkg.FromWatermill(msg.Metadata))
		headers.Set(nats.MsgIdHdr, msg.UUID)
		if _, err := t.js.PublishMsg(&nats.Msg{Subject: subject, Data: msg.Payload, Header: headers}); err != nil {
			return fmt.Errorf("contractflow: publish to %q: %w", subject, err)
		}
	}
	return nil
}

// Subscribe creates (or updates) a durable pull consumer filtered on topic
// and streams its messages until ctx ends or the transport closes. Each
// message is acked or nacked on JetStream when the handler settles it.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	subject := t.subject(topic)
	durable := t.consumerName(topic)

	consumerCfg := &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    t.config.MaxDeliver,
		AckWait:       t.config.AckWait,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
	if _, err := t.js.AddConsumer(t.config.StreamName, consumerCfg); err != nil {
		if _, err = t.js.UpdateConsumer(t.config.StreamName, consumerCfg); err != nil {
			return nil, fmt.Errorf("contractflow: consumer %q: %w", durable, err)
		}
	}

	sub, err := t.js.PullSubscribe(subject, durable, nats.Bind(t.config.StreamName, durable))
	if err != nil {
		return nil, fmt.Errorf("contractflow: pull subscribe %q: %w", subject, err)
	}
	t.subMu.Lock()
	t.subscriptions = append(t.subscriptions, sub)
	t.subMu.Unlock()

	output := make(chan *message.Message)
	t.wg.Add(1)
	go t.fetch(ctx, sub, output, topic)
	return output, nil
}

func (t *Transport) fetch(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer t.wg.Done()
	defer close(output)
	fields := watermill.LogFields{"topic": topic}

	for {
		if ctx.Err() != nil || t.isClosed() {
			return
		}
		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			t.logger.Error("Failed to fetch messages", err, fields)
			continue
		}

		for _, natsMsg := range msgs {
			if !t.deliver(ctx, natsMsg, output, fields) {
				return
			}
		}
	}
}

// deliver hands one message to the consumer and settles it on JetStream.
// It reports false when the subscription is shutting down.
func (t *Transport) deliver(ctx context.Context, natsMsg *nats.Msg, output chan<- *message.Message, fields watermill.LogFields) bool {
	msg := toWatermill(natsMsg)
	msg.SetContext(ctx)

	select {
	case output <- msg:
	case <-ctx.Done():
		return false
	case <-t.closed:
		return false
	}

	select {
	case <-msg.Acked():
		if err := natsMsg.Ack(); err != nil {
			t.logger.Error("Failed to ack", err, fields)
		}
	case <-msg.Nacked():
		if err := natsMsg.Nak(); err != nil {
			t.logger.Error("Failed to nak", err, fields)
		}
	case <-ctx.Done():
		return false
	case <-t.closed:
		return false
	}
	return true
}

func toWatermill(natsMsg *nats.Msg) *message.Message {
	id := idspkg.OrNew(natsMsg.Header.Get(nats.MsgIdHdr), natsMsg.Header.Get(metadatapkg.HeaderRequestID))
	msg := message.NewMessage(id, natsMsg.Data)
	msg.Metadata = metadatapkg.ToWatermill(metadatapkg.FromNATS(natsMsg.Header))
	return msg
}

func (t *Transport) subject(topic string) string {
	return t.config.StreamName + "." + topic
}

// consumerName derives a durable name from the topic; JetStream forbids
// dots and wildcards in consumer names.
func (t *Transport) consumerName(topic string) string {
	name := invalidConsumerChars.ReplaceAllString(topic, "_")
	if t.config.QueueGroup != "" {
		return invalidConsumerChars.ReplaceAllString(t.config.QueueGroup, "_") + "_" + name
	}
	return "consumer_" + name
}

// Close stops every subscription and closes the connection if the transport
// opened it.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.subMu.Lock()
		for _, sub := range t.subscriptions {
			_ = sub.Unsubscribe()
		}
		t.subscriptions = nil
		t.subMu.Unlock()
		t.wg.Wait()
		if t.ownConn {
			t.nc.Close()
		}
	})
	return nil
}

// Capabilities reports the JetStream capabilities.
func (t *Transport) Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}
