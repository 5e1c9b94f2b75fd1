package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/contractflow/internal/runtime/config"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/transport"
)

// fakeAWS replaces the SDK seams and records what Build passed to them.
type fakeAWS struct {
	loadErr, pubErr, subErr error

	accountID, region string
	pubCfg            sns.PublisherConfig
	subCfg            sns.SubscriberConfig
	pubClosed         bool
	pubSub            *gochannel.GoChannel
}

func installFakeAWS(t *testing.T, f *fakeAWS) {
	t.Helper()
	loader, resolver, pubFactory, subFactory := DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory = loader, resolver, pubFactory, subFactory
	})

	f.pubSub = gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "eu-central-1"}, f.loadErr
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		f.accountID, f.region = accountID, region
		return sns.NewGenerateArnTopicResolver(accountID, region)
	}
	PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		f.pubCfg = cfg
		if f.pubErr != nil {
			return nil, f.pubErr
		}
		return closeRecorder{Publisher: f.pubSub, closed: &f.pubClosed}, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, _ sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		f.subCfg = cfg
		if f.subErr != nil {
			return nil, f.subErr
		}
		return f.pubSub, nil
	}
}

type closeRecorder struct {
	message.Publisher
	closed *bool
}

func (c closeRecorder) Close() error {
	*c.closed = true
	return nil
}

func TestRegisteredPerContractTopics(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, Capabilities(), caps)
	assert.False(t, caps.SupportsWildcards)
	assert.True(t, caps.SupportsReliableDelivery())
}

func TestBuild(t *testing.T) {
	f := &fakeAWS{}
	installFakeAWS(t, f)

	tr, err := Build(context.Background(), &config.Config{
		AWSRegion:    "us-west-2",
		AWSAccountID: `"123456789012"`,
		QueueGroup:   "thermostats",
	}, watermill.NopLogger{})
	require.NoError(t, err)

	assert.NotNil(t, tr.Publisher)
	assert.Same(t, f.pubSub, tr.Subscriber)
	assert.Equal(t, "123456789012", f.accountID)
	assert.Equal(t, "us-west-2", f.region)
	assert.Empty(t, f.pubCfg.OptFns)

	queue, err := f.subCfg.GenerateSqsQueueName(context.Background(), "arn:aws:sns:us-west-2:123456789012:sensor-reading")
	require.NoError(t, err)
	assert.Equal(t, "sensor-reading-thermostats", queue)
}

func TestBuildLocalStack(t *testing.T) {
	for _, account := range []string{"", "42"} {
		t.Run("account "+account, func(t *testing.T) {
			f := &fakeAWS{}
			installFakeAWS(t, f)

			_, err := Build(context.Background(), &config.Config{
				AWSAccountID: account,
				AWSEndpoint:  "http://localhost:4566",
			}, watermill.NopLogger{})
			require.NoError(t, err)

			assert.Equal(t, LocalStackAccountID, f.accountID)
			assert.Equal(t, "eu-central-1", f.region, "region falls back to the SDK default")
			assert.Len(t, f.pubCfg.OptFns, 1)
			assert.Len(t, f.subCfg.OptFns, 1)
		})
	}
}

func TestBuildFailures(t *testing.T) {
	loadErr := errors.New("no credentials")
	subErr := errors.New("queue denied")

	t.Run("config loader", func(t *testing.T) {
		installFakeAWS(t, &fakeAWS{loadErr: loadErr})
		_, err := Build(context.Background(), &config.Config{}, watermill.NopLogger{})
		assert.ErrorIs(t, err, loadErr)
	})

	t.Run("bad endpoint", func(t *testing.T) {
		installFakeAWS(t, &fakeAWS{})
		_, err := Build(context.Background(), &config.Config{AWSEndpoint: "http://[::1"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "aws endpoint")
	})

	t.Run("subscriber closes publisher", func(t *testing.T) {
		f := &fakeAWS{subErr: subErr}
		installFakeAWS(t, f)
		_, err := Build(context.Background(), &config.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
		assert.ErrorIs(t, err, subErr)
		assert.True(t, f.pubClosed)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := Build(context.Background(), nil, watermill.NopLogger{})
		assert.ErrorIs(t, err, errspkg.ErrConfigRequired)
	})
}

func TestQueueNameWithoutGroup(t *testing.T) {
	name, err := queueName("")(context.Background(), "arn:aws:sns:us-east-1:000000000000:orders_created")
	require.NoError(t, err)
	assert.Equal(t, "orders_created", name)
}

func TestStaticCredentials(t *testing.T) {
	creds, err := staticCredentials("AKID", "secret").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}
