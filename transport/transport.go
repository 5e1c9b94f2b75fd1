// Package transport defines the broker plumbing used by the events adapter.
// Each broker (kafka, rabbitmq, aws, ...) lives in its own sub-package and
// registers a Builder with the registry.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the publisher and the subscriber. A shared pub/sub value is
// closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil && !sameValue(t.Publisher, t.Subscriber) {
		errs = append(errs, t.Subscriber.Close())
	}
	return errors.Join(errs...)
}

func sameValue(pub message.Publisher, sub message.Subscriber) bool {
	p, ok := pub.(message.Subscriber)
	return ok && p == sub
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values builders read. It is satisfied by the runtime
// config package without importing it.
type Config interface {
	GetPubSubSystem() string

	// GetQueueGroup names the consumer group shared by replicas. Brokers
	// map it to their own notion (queue group, consumer group, queue name).
	GetQueueGroup() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that report their
// capabilities at runtime.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
