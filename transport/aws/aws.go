// Package aws carries events over SNS topics fanned out to SQS queues.
//
// Each event contract gets its own SNS topic. A subscriber creates one SQS
// queue per topic, or per topic and queue group, so replicas of a service
// sharing a group compete for deliveries.
package aws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/transport"
)

const TransportName = "aws"

// LocalStackAccountID is used when an endpoint override is set and no
// usable account id is configured.
const LocalStackAccountID = "000000000000"

// Seams replaced in tests.
var (
	DefaultConfigLoader  = awsconfig.LoadDefaultConfig
	TopicResolverFactory = sns.NewGenerateArnTopicResolver
	PublisherFactory     = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sns.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

func init() { Register() }

func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.AWSCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.AWSCapabilities
}

// settings is the broker view of the contractflow config.
type settings struct {
	region     string
	accountID  string
	queueGroup string
	endpoint   *url.URL
}

// Build loads the AWS SDK config and creates an SNS publisher and an
// SNS-to-SQS subscriber.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if cfg == nil {
		return transport.Transport{}, errspkg.ErrConfigRequired
	}
	awsCfg, err := loadSDKConfig(ctx, cfg)
	if err != nil {
		logger.Error("AWS config could not be loaded", err, watermill.LogFields{"region": cfg.GetAWSRegion()})
		return transport.Transport{}, err
	}
	s, err := resolveSettings(cfg, awsCfg)
	if err != nil {
		return transport.Transport{}, err
	}
	logger.Info("AWS broker configured", watermill.LogFields{
		"region":      s.region,
		"account_id":  s.accountID,
		"queue_group": s.queueGroup,
		"endpoint":    s.endpoint != nil,
	})

	resolver, err := TopicResolverFactory(s.accountID, s.region)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("contractflow: sns topic resolver: %w", err)
	}
	snsOpts, sqsOpts := endpointOverrides(s.endpoint)

	pub, err := PublisherFactory(sns.PublisherConfig{
		AWSConfig:     awsCfg,
		OptFns:        snsOpts,
		TopicResolver: resolver,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("contractflow: sns publisher: %w", err)
	}

	sub, err := SubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig:            awsCfg,
			OptFns:               snsOpts,
			TopicResolver:        resolver,
			GenerateSqsQueueName: queueName(s.queueGroup),
		},
		sqs.SubscriberConfig{AWSConfig: awsCfg, OptFns: sqsOpts},
		logger,
	)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("contractflow: sqs subscriber: %w", err), pub.Close())
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}

func loadSDKConfig(ctx context.Context, cfg transport.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := cfg.GetAWSRegion(); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if key, secret := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentials(key, secret)))
	}
	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if region := cfg.GetAWSRegion(); region != "" {
		awsCfg.Region = region
	}
	return awsCfg, nil
}

func resolveSettings(cfg transport.Config, awsCfg aws.Config) (settings, error) {
	s := settings{
		region:     awsCfg.Region,
		accountID:  strings.Trim(cfg.GetAWSAccountID(), "\"' "),
		queueGroup: cfg.GetQueueGroup(),
	}

	raw := cfg.GetAWSEndpoint()
	if raw == "" && awsCfg.BaseEndpoint != nil {
		raw = *awsCfg.BaseEndpoint
	}
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return settings{}, fmt.Errorf("contractflow: aws endpoint %q: %w", raw, err)
		}
		s.endpoint = u
		// Emulators accept any 12 digit account.
		if len(s.accountID) != 12 {
			s.accountID = LocalStackAccountID
		}
	}
	return s, nil
}

func endpointOverrides(endpoint *url.URL) ([]func(*amazonsns.Options), []func(*amazonsqs.Options)) {
	if endpoint == nil {
		return nil, nil
	}
	target := smithyendpoints.Endpoint{URI: *endpoint}
	return []func(*amazonsns.Options){
			amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{Endpoint: target}),
		}, []func(*amazonsqs.Options){
			amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{Endpoint: target}),
		}
}

// queueName derives the SQS queue from the SNS topic, suffixed with the
// queue group when one is set.
func queueName(group string) func(context.Context, sns.TopicArn) (string, error) {
	return func(_ context.Context, arn sns.TopicArn) (string, error) {
		topic, err := sns.ExtractTopicNameFromTopicArn(arn)
		if err != nil {
			return "", err
		}
		if group == "" {
			return string(topic), nil
		}
		return string(topic) + "-" + group, nil
	}
}

func staticCredentials(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey}, nil
	})
}
