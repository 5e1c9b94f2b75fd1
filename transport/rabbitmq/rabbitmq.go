// Package rabbitmq carries events over durable AMQP fan-out exchanges, one
// exchange per event contract topic.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/transport"
)

const TransportName = "rabbitmq"

// Seams replaced in tests.
var (
	ConnectionFactory = amqp.NewConnection
	PublisherFactory  = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(cfg, logger, conn)
	}
	SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
	closeConnection = func(conn *amqp.ConnectionWrapper) error { return conn.Close() }
)

func init() { Register() }

func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

// Build opens one reconnecting connection shared by the publisher and the
// subscriber. Replicas in the same queue group share a queue per topic.
// Closing the publisher closes the connection.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if cfg == nil || cfg.GetRabbitMQURL() == "" {
		return transport.Transport{}, fmt.Errorf("%w: rabbitmq URL", errspkg.ErrConfigRequired)
	}
	uri := cfg.GetRabbitMQURL()

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   uri,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("contractflow: rabbitmq connection: %w", err)
	}

	amqpCfg := amqp.NewDurablePubSubConfig(uri, queueNameGenerator(cfg.GetQueueGroup()))
	pub, err := PublisherFactory(amqpCfg, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("contractflow: rabbitmq publisher: %w", err), closeConnection(conn))
	}
	pub = &connPublisher{Publisher: pub, conn: conn}

	sub, err := SubscriberFactory(amqpCfg, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("contractflow: rabbitmq subscriber: %w", err), pub.Close())
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}

// connPublisher owns the shared connection.
type connPublisher struct {
	message.Publisher
	conn *amqp.ConnectionWrapper
}

func (p *connPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), closeConnection(p.conn))
}

func queueNameGenerator(group string) amqp.QueueNameGenerator {
	if group == "" {
		return amqp.GenerateQueueNameTopicName
	}
	return amqp.GenerateQueueNameTopicNameWithSuffix(group)
}
