// Package nats carries events over core NATS. Topics are NATS subjects, so
// an event pattern like sensors.*.* is subscribed as is and the concrete
// subject arrives with each message.
//
// Core NATS has no acknowledgements; use nats-jetstream for redelivery.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/transport"
)

const TransportName = "nats"

// Seams replaced in tests.
var (
	PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return nats.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return nats.NewSubscriber(cfg, logger)
	}
)

func init() { Register() }

func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// connectOptions keep reconnecting forever; a broker restart must not end
// the subscription loop.
func connectOptions() []nc.Option {
	return []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.ReconnectWait(time.Second),
		nc.MaxReconnects(-1),
	}
}

// Build dials cfg's NATS URL with JetStream disabled. Replicas sharing a
// queue group receive each event once.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if cfg == nil {
		return transport.Transport{}, errspkg.ErrConfigRequired
	}
	url := cfg.GetNATSURL()
	if url == "" {
		url = nc.DefaultURL
	}
	codec := &nats.NATSMarshaler{}
	coreOnly := nats.JetStreamConfig{Disabled: true}

	pub, err := PublisherFactory(nats.PublisherConfig{
		URL:         url,
		NatsOptions: connectOptions(),
		Marshaler:   codec,
		JetStream:   coreOnly,
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("contractflow: nats publisher: %w", err)
	}

	sub, err := SubscriberFactory(nats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.GetQueueGroup(),
		CloseTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		NatsOptions:      connectOptions(),
		Unmarshaler:      codec,
		JetStream:        coreOnly,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("contractflow: nats subscriber: %w", err), pub.Close())
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}
