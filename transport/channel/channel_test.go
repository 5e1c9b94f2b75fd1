package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/contractflow/internal/runtime/config"
	"github.com/drblury/contractflow/transport"
)

func TestRegisteredWithoutWildcards(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, transport.ChannelCapabilities, caps)
	assert.Equal(t, caps, Capabilities())
	// Event contracts get one topic each on this broker.
	assert.False(t, caps.SupportsWildcards)
	assert.True(t, caps.SupportsNack)
}

func TestBuildRoundTrip(t *testing.T) {
	cfg := &config.Config{PubSubSystem: TransportName}
	tr, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, tr.Close()) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	readings, err := tr.Subscriber.Subscribe(ctx, "sensor-reading")
	require.NoError(t, err)

	require.NoError(t, tr.Publisher.Publish("sensor-reading",
		message.NewMessage("r-1", []byte(`{"celsius":21}`))))

	select {
	case msg := <-readings:
		assert.Equal(t, "r-1", msg.UUID)
		assert.JSONEq(t, `{"celsius":21}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("reading not delivered")
	}
}

func TestBuildIsolatesInstances(t *testing.T) {
	cfg := &config.Config{PubSubSystem: TransportName}
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	b, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.NotSame(t, a.Publisher, b.Publisher)
}

func TestBuildUsesFactory(t *testing.T) {
	saved := Factory
	t.Cleanup(func() { Factory = saved })

	var got gochannel.Config
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	Factory = func(cfg gochannel.Config, _ watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		got = cfg
		return pubSub, pubSub
	}

	tr, err := Build(context.Background(), &config.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, int64(OutputBuffer), got.OutputChannelBuffer)
	assert.Same(t, pubSub, tr.Publisher)
	// Publisher and subscriber are one value and close once.
	assert.NoError(t, tr.Close())
}
