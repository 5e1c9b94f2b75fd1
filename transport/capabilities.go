package transport

// Capabilities describes what a broker offers the events adapter.
type Capabilities struct {
	// Name is the registry name, the PUBSUB_SYSTEM config value.
	Name string

	// SupportsWildcards means topics are NATS subject patterns, so an event
	// pattern like sensors.*.* is subscribed directly. Other brokers get one
	// topic per event contract and the subject travels in a header.
	SupportsWildcards bool

	SupportsOrdering     bool
	SupportsTracing      bool
	SupportsBatching     bool
	SupportsPartitioning bool

	// SupportsAck and SupportsNack: explicit acknowledgement, and
	// redelivery of nacked messages.
	SupportsAck  bool
	SupportsNack bool

	// MaxMessageSize in bytes; zero when unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a payload of size bytes is within MaxMessageSize.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

const (
	natsMaxPayload  = 1 << 20 // server default max_payload
	kafkaMaxMessage = 1 << 20 // broker default message.max.bytes
	snsMaxMessage   = 256 << 10
)

// Capabilities of the built-in brokers.
var (
	ChannelCapabilities = Capabilities{Name: "channel", SupportsOrdering: true, SupportsAck: true, SupportsNack: true}

	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsWildcards: true,
		SupportsTracing:   true,
		MaxMessageSize:    natsMaxPayload,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:              "nats-jetstream",
		SupportsWildcards: true,
		SupportsOrdering:  true,
		SupportsTracing:   true,
		SupportsBatching:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		MaxMessageSize:    natsMaxPayload,
	}

	// Kafka has no per-message nack; an unacked offset is simply re-read.
	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsTracing:      true,
		SupportsBatching:     true,
		SupportsPartitioning: true,
		SupportsAck:          true,
		MaxMessageSize:       kafkaMaxMessage,
	}

	RabbitMQCapabilities = Capabilities{Name: "rabbitmq", SupportsOrdering: true, SupportsTracing: true, SupportsAck: true, SupportsNack: true}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsBatching: true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   snsMaxMessage,
	}

	HTTPCapabilities = Capabilities{Name: "http", SupportsTracing: true}
)

// GetCapabilities looks name up in DefaultRegistry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
