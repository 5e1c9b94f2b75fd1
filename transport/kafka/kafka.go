// Package kafka carries events over Kafka. Every event contract has its own
// topic; the concrete subject rides in the message headers.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/transport"
)

const TransportName = "kafka"

// Seams replaced in tests.
var (
	PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return kafka.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return kafka.NewSubscriber(cfg, logger)
	}
)

func init() { Register() }

func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// ConsumerGroup is the Kafka consumer group of cfg: the explicit Kafka
// group, else the queue group shared by service replicas. Empty means every
// subscriber reads every partition.
func ConsumerGroup(cfg transport.Config) string {
	if group := cfg.GetKafkaConsumerGroup(); group != "" {
		return group
	}
	return cfg.GetQueueGroup()
}

func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if cfg == nil || len(cfg.GetKafkaBrokers()) == 0 {
		return transport.Transport{}, fmt.Errorf("%w: kafka brokers", errspkg.ErrConfigRequired)
	}
	brokers := cfg.GetKafkaBrokers()
	codec := kafka.DefaultMarshaler{}

	pub, err := PublisherFactory(kafka.PublisherConfig{Brokers: brokers, Marshaler: codec}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("contractflow: kafka publisher: %w", err)
	}

	sub, err := SubscriberFactory(kafka.SubscriberConfig{
		Brokers:       brokers,
		Unmarshaler:   codec,
		ConsumerGroup: ConsumerGroup(cfg),
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("contractflow: kafka subscriber: %w", err), pub.Close())
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}
