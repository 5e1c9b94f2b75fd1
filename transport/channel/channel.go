// Package channel is an in-process broker on Watermill's gochannel. Each
// Build returns an isolated bus, so it suits tests and single binaries
// where the server and its clients share one process.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/contractflow/transport"
)

const TransportName = "channel"

// OutputBuffer is the per-subscription buffer. Publishing blocks once a
// slow handler fills it.
const OutputBuffer = 64

// Factory is replaced in tests.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	bus := gochannel.NewGoChannel(cfg, logger)
	return bus, bus
}

func init() { Register() }

func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

func Capabilities() transport.Capabilities { return transport.ChannelCapabilities }

// Build ignores cfg; the bus needs no settings.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}
