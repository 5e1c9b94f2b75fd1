// Package events serves event contracts over any broker in the transport
// registry and publishes them from clients.
//
// Brokers with subject wildcards (nats, nats-jetstream) subscribe the event
// pattern directly. Every other broker gets one topic per event contract,
// named after the contract, and the concrete subject travels in the
// Contract-Subject header.
package events

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/contractflow/internal/runtime"
	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
	"github.com/drblury/contractflow/transport"
)

var invalidTopicChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// TopicName turns a contract name into a topic valid on every built-in
// broker (kafka, amqp, sns/sqs, http paths).
func TopicName(contractName string) string {
	return invalidTopicChars.ReplaceAllString(contractName, "_")
}

// Topic is the subscription topic of an event contract on a broker with caps.
func Topic(c contract.Descriptor, caps transport.Capabilities) string {
	if caps.SupportsWildcards {
		return c.Address().Pattern()
	}
	return TopicName(c.Name())
}

// Option customises NewAdapter and NewClientTransport.
type Option func(*options)

type options struct {
	caps      transport.Capabilities
	capsSet   bool
	logger    loggingpkg.ServiceLogger
	registry  prometheus.Registerer
	namespace string
}

// WithCapabilities overrides the capabilities reported by the transport.
func WithCapabilities(caps transport.Capabilities) Option {
	return func(o *options) {
		o.caps = caps
		o.capsSet = true
	}
}

func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPrometheus decorates the publisher and subscriber with Watermill's
// Prometheus metrics, registered on reg under namespace.
func WithPrometheus(reg prometheus.Registerer, namespace string) Option {
	return func(o *options) {
		o.registry = reg
		o.namespace = namespace
	}
}

func buildOptions(tr transport.Transport, opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if !o.capsSet {
		o.caps = capabilitiesOf(tr)
	}
	return o
}

func capabilitiesOf(tr transport.Transport) transport.Capabilities {
	if p, ok := tr.Subscriber.(transport.CapabilitiesProvider); ok {
		return p.Capabilities()
	}
	if p, ok := tr.Publisher.(transport.CapabilitiesProvider); ok {
		return p.Capabilities()
	}
	return transport.Capabilities{}
}

func (o options) metricsBuilder() (metrics.PrometheusMetricsBuilder, bool) {
	if o.registry == nil {
		return metrics.PrometheusMetricsBuilder{}, false
	}
	return metrics.NewPrometheusMetricsBuilder(o.registry, o.namespace, "events"), true
}

// Adapter is a runtime.Adapter serving event routes from a broker. It does
// not serve operations.
type Adapter struct {
	subscriber message.Subscriber
	opts       options
}

var _ runtime.Adapter = (*Adapter)(nil)

// NewAdapter serves events from tr.Subscriber.
func NewAdapter(tr transport.Transport, opts ...Option) (*Adapter, error) {
	if tr.Subscriber == nil {
		return nil, errspkg.ErrTransportRequired
	}
	o := buildOptions(tr, opts)
	sub := tr.Subscriber
	if builder, ok := o.metricsBuilder(); ok {
		decorated, err := builder.DecorateSubscriber(sub)
		if err != nil {
			return nil, fmt.Errorf("contractflow: decorate subscriber: %w", err)
		}
		sub = decorated
	}
	return &Adapter{subscriber: sub, opts: o}, nil
}

// Capabilities returns the broker capabilities the adapter routes by.
func (a *Adapter) Capabilities() transport.Capabilities { return a.opts.caps }

// Serve subscribes one topic per event route and consumes each topic on its
// own goroutine. A table with operations is rejected.
func (a *Adapter) Serve(ctx context.Context, table *runtime.DispatchTable) (runtime.Instance, error) {
	if len(table.Operations) > 0 {
		return nil, fmt.Errorf("%w: events adapter cannot serve operation %q",
			errspkg.ErrRequestReplyUnsupported, table.Operations[0].Name())
	}
	logger := loggingpkg.OrNop(a.opts.logger)
	if a.opts.logger == nil {
		logger = loggingpkg.OrNop(table.Logger)
	}

	topics := make(map[string]string, len(table.Events))
	for _, route := range table.Events {
		topic := Topic(route.Contract(), a.opts.caps)
		if other, dup := topics[topic]; dup {
			return nil, &errspkg.DuplicateSubjectError{First: other, Second: route.Name(), Subject: topic}
		}
		topics[topic] = route.Name()
	}

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	inst := &instance{cancel: cancel, logger: logger}
	for _, route := range table.Events {
		topic := Topic(route.Contract(), a.opts.caps)
		messages, err := a.subscriber.Subscribe(base, topic)
		if err != nil {
			_ = inst.Stop(ctx)
			return nil, fmt.Errorf("contractflow: subscribe %q: %w", topic, err)
		}
		inst.wg.Add(1)
		go func() {
			defer inst.wg.Done()
			consume(base, route, topic, messages, logger)
		}()
	}

	logger.Info("Events adapter started", loggingpkg.LogFields{
		"transport": a.opts.caps.Name,
		"wildcards": a.opts.caps.SupportsWildcards,
		"events":    len(table.Events),
	})
	return inst, nil
}

func consume(ctx context.Context, route *runtime.EventRoute, topic string, messages <-chan *message.Message, logger loggingpkg.ServiceLogger) {
	for msg := range messages {
		in := newInboundMessage(msg, topic, route)
		err := route.Serve(ctx, in)
		if err != nil {
			logger.Error("Event handler failed", err, loggingpkg.LogFields{
				"event":   route.Name(),
				"topic":   topic,
				"subject": in.Subject(),
				"uuid":    msg.UUID,
			})
		}
		// Middleware may fail before the binding settles the message.
		if in.settled.CompareAndSwap(false, true) {
			if err != nil {
				msg.Nack()
			} else {
				msg.Ack()
			}
		}
	}
}

type instance struct {
	cancel context.CancelFunc
	logger loggingpkg.ServiceLogger
	wg     sync.WaitGroup
	once   sync.Once
	err    error
}

// Stop cancels the subscriptions and waits for in-flight handlers, bounded
// by ctx.
func (i *instance) Stop(ctx context.Context) error {
	i.once.Do(func() {
		i.cancel()
		done := make(chan struct{})
		go func() {
			i.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			i.err = ctx.Err()
		}
		i.logger.Info("Events adapter stopped", nil)
	})
	return i.err
}

// inboundMessage maps settlement onto Watermill's ack/nack. Term acks, since
// Watermill has no dead-letter verb at this level.
type inboundMessage struct {
	msg     *message.Message
	subject string
	settled atomic.Bool
}

func newInboundMessage(msg *message.Message, topic string, route *runtime.EventRoute) *inboundMessage {
	subject := msg.Metadata.Get(metadatapkg.HeaderContractSubject)
	if subject == "" && !route.Contract().Address().HasParams() {
		subject = route.Template()
	}
	if subject == "" {
		subject = topic
	}
	return &inboundMessage{msg: msg, subject: subject}
}

func (m *inboundMessage) Subject() string { return m.subject }

func (m *inboundMessage) Data() []byte { return m.msg.Payload }

func (m *inboundMessage) Headers() metadatapkg.Metadata {
	return metadatapkg.FromWatermill(m.msg.Metadata)
}

func (m *inboundMessage) Ack(context.Context) error {
	if !m.settled.CompareAndSwap(false, true) {
		return errspkg.ErrAlreadyAcknowledged
	}
	m.msg.Ack()
	return nil
}

// Nak waits out delay before nacking; the broker redelivers afterwards.
func (m *inboundMessage) Nak(ctx context.Context, delay time.Duration) error {
	if !m.settled.CompareAndSwap(false, true) {
		return errspkg.ErrAlreadyAcknowledged
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	m.msg.Nack()
	return nil
}

func (m *inboundMessage) Term(context.Context) error {
	if !m.settled.CompareAndSwap(false, true) {
		return errspkg.ErrAlreadyAcknowledged
	}
	m.msg.Ack()
	return nil
}

// Bus is a broker built from config with both sides attached.
type Bus struct {
	Transport transport.Transport
	Adapter   *Adapter
	Client    *ClientTransport
}

// Open builds the broker named by cfg from the transport registry, with the
// registered capabilities, and attaches an adapter and a client transport
// for application.
func Open(ctx context.Context, registry *transport.Registry, cfg transport.Config, application Resolver, opts ...Option) (*Bus, error) {
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	o := buildOptions(transport.Transport{}, opts)
	tr, err := registry.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(loggingpkg.OrNop(o.logger)))
	if err != nil {
		return nil, err
	}
	all := append([]Option{WithCapabilities(registry.GetCapabilities(cfg.GetPubSubSystem()))}, opts...)

	adapter, err := NewAdapter(tr, all...)
	if err != nil {
		return nil, errors.Join(err, tr.Close())
	}
	client, err := NewClientTransport(tr, application, all...)
	if err != nil {
		return nil, errors.Join(err, tr.Close())
	}
	return &Bus{Transport: tr, Adapter: adapter, Client: client}, nil
}

// Close closes the broker.
func (b *Bus) Close() error { return b.Transport.Close() }
