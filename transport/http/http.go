// Package http carries events as HTTP POSTs. Publishers post to the topic
// path under the publisher URL; the subscriber listens on the server
// address and serves one path per subscribed topic.
//
// HTTP has no acknowledgement: a nacked message is answered with an error
// status and the sender decides whether to retry.
package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/transport"
)

const TransportName = "http"

// Seams replaced in tests.
var (
	PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return http.NewPublisher(config, logger)
	}
	SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return http.NewSubscriber(addr, config, logger)
	}
)

func init() { Register() }

func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// Build creates the publisher and subscriber. A real watermill subscriber
// starts serving in the background.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if cfg == nil {
		return transport.Transport{}, errspkg.ErrConfigRequired
	}
	addr := cfg.GetHTTPServerAddress()

	pub, err := PublisherFactory(http.PublisherConfig{
		MarshalMessageFunc: topicMarshaler(cfg.GetHTTPPublisherURL()),
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("contractflow: http publisher: %w", err)
	}

	sub, err := SubscriberFactory(addr, http.SubscriberConfig{
		UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("contractflow: http subscriber: %w", err), pub.Close())
	}

	if server, ok := sub.(*http.Subscriber); ok {
		go serve(server, addr, logger)
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}

// topicMarshaler posts each message to base joined with its topic.
func topicMarshaler(base string) http.MarshalMessageFunc {
	return func(topic string, msg *message.Message) (*nethttp.Request, error) {
		target, err := url.JoinPath(base, topic)
		if err != nil {
			return nil, fmt.Errorf("contractflow: http topic url: %w", err)
		}
		return http.DefaultMarshalMessageFunc(target, msg)
	}
}

func serve(server *http.Subscriber, addr string, logger watermill.LoggerAdapter) {
	err := server.StartHTTPServer()
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		logger.Error("HTTP event listener stopped", err, watermill.LogFields{"addr": addr})
	}
}
