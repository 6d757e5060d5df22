package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/samvad-hq/gallery-relay/internal/logger"
)

// AWSCredentials pins static keys instead of the default credential chain.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
}

// SQSConfig targets a queue. Queues ending in ".fifo" get per-gallery ordering.
type SQSConfig struct {
	QueueURL    string          `json:"queue_url" yaml:"queue_url"`
	Region      string          `json:"region" yaml:"region"`
	Credentials *AWSCredentials `json:"credentials" yaml:"credentials"`
}

// SNSConfig targets a topic. Topics ending in ".fifo" get per-gallery ordering.
type SNSConfig struct {
	TopicARN    string          `json:"topic_arn" yaml:"topic_arn"`
	Region      string          `json:"region" yaml:"region"`
	Credentials *AWSCredentials `json:"credentials" yaml:"credentials"`
}

func checkSQS(s *SinkConfig) error {
	if s.SQS == nil {
		return errors.New("sqs block is required")
	}
	c := *s.SQS
	c.QueueURL, c.Region = strings.TrimSpace(c.QueueURL), strings.TrimSpace(c.Region)
	if c.QueueURL == "" || c.Region == "" {
		return errors.New("sqs.queue_url and sqs.region are required")
	}
	s.SQS = &c
	return nil
}

func checkSNS(s *SinkConfig) error {
	if s.SNS == nil {
		return errors.New("sns block is required")
	}
	c := *s.SNS
	c.TopicARN, c.Region = strings.TrimSpace(c.TopicARN), strings.TrimSpace(c.Region)
	if c.TopicARN == "" || c.Region == "" {
		return errors.New("sns.topic_arn and sns.region are required")
	}
	s.SNS = &c
	return nil
}

func loadAWSConfig(ctx context.Context, region string, creds *AWSCredentials) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if creds != nil && creds.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// messageAttributes exposes kind and gallery id for subscription filters.
func messageAttributes[T any](evt Event, wrap func(string) T) map[string]T {
	return map[string]T{
		"kind":       wrap(evt.Kind),
		"gallery_id": wrap(strconv.FormatInt(evt.GalleryID, 10)),
	}
}

// fifoKeys groups a gallery's events so created precedes updated.
func fifoKeys(evt Event) (group, dedup string) {
	group = strconv.FormatInt(evt.GalleryID, 10)
	dedup = fmt.Sprintf("%s-%d-%d", evt.Kind, evt.GalleryID, evt.OccurredAt.UnixNano())
	return group, dedup
}

type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsPublisher struct {
	id       string
	queueURL string
	fifo     bool
	client   sqsClient
	log      logger.Logger
}

func openSQS(ctx context.Context, sink SinkConfig, log logger.Logger) (Publisher, error) {
	cfg, err := loadAWSConfig(ctx, sink.SQS.Region, sink.SQS.Credentials)
	if err != nil {
		return nil, err
	}
	return newSQSPublisher(sink.ID, sink.SQS.QueueURL, sqs.NewFromConfig(cfg), log), nil
}

func newSQSPublisher(id, queueURL string, client sqsClient, log logger.Logger) *sqsPublisher {
	return &sqsPublisher{
		id:       id,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		client:   client,
		log:      logger.Ensure(log),
	}
}

func (s *sqsPublisher) ID() string   { return s.id }
func (s *sqsPublisher) Type() string { return TypeSQS }

func (s *sqsPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: messageAttributes(evt, func(v string) sqstypes.MessageAttributeValue {
			return sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		}),
	}
	if s.fifo {
		group, dedup := fifoKeys(evt)
		input.MessageGroupId, input.MessageDeduplicationId = aws.String(group), aws.String(dedup)
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		s.log.ErrorObj("sqs send failed", "publisher_sqs_error", map[string]any{
			"publisher_id": s.id,
			"gallery_id":   evt.GalleryID,
			"error":        err.Error(),
		})
		return fmt.Errorf("send message to sqs: %w", err)
	}
	s.log.DebugObj("sqs delivered event", "publisher_sqs_delivery", map[string]any{
		"publisher_id": s.id,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}

type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsPublisher struct {
	id       string
	topicARN string
	fifo     bool
	client   snsClient
	log      logger.Logger
}

func openSNS(ctx context.Context, sink SinkConfig, log logger.Logger) (Publisher, error) {
	cfg, err := loadAWSConfig(ctx, sink.SNS.Region, sink.SNS.Credentials)
	if err != nil {
		return nil, err
	}
	return newSNSPublisher(sink.ID, sink.SNS.TopicARN, sns.NewFromConfig(cfg), log), nil
}

func newSNSPublisher(id, topicARN string, client snsClient, log logger.Logger) *snsPublisher {
	return &snsPublisher{
		id:       id,
		topicARN: topicARN,
		fifo:     strings.HasSuffix(topicARN, ".fifo"),
		client:   client,
		log:      logger.Ensure(log),
	}
}

func (s *snsPublisher) ID() string   { return s.id }
func (s *snsPublisher) Type() string { return TypeSNS }

func (s *snsPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: messageAttributes(evt, func(v string) snstypes.MessageAttributeValue {
			return snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		}),
	}
	if s.fifo {
		group, dedup := fifoKeys(evt)
		input.MessageGroupId, input.MessageDeduplicationId = aws.String(group), aws.String(dedup)
	}

	out, err := s.client.Publish(ctx, input)
	if err != nil {
		s.log.ErrorObj("sns publish failed", "publisher_sns_error", map[string]any{
			"publisher_id": s.id,
			"gallery_id":   evt.GalleryID,
			"error":        err.Error(),
		})
		return fmt.Errorf("publish to sns: %w", err)
	}
	s.log.DebugObj("sns delivered event", "publisher_sns_delivery", map[string]any{
		"publisher_id": s.id,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}
