package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("n-1")}, nil
}

func sampleEvent() Event {
	evt := NewEvent(EventGalleryCreated,
		domain.Gallery{ID: 42, Token: "abc", Title: "t", Tags: []domain.Tag{{Namespace: "artist", Value: "x"}}},
		domain.Message{GalleryID: 42, ID: 7, ArticleURL: "https://telegra.ph/a"},
		3,
	)
	evt.OccurredAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return evt
}

func TestSQSPublisherSendsEvent(t *testing.T) {
	client := &fakeSQSClient{}
	pub := newSQSPublisher("q", "https://sqs/queue", client, nil)

	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if aws.ToString(client.input.QueueUrl) != "https://sqs/queue" {
		t.Fatalf("unexpected queue url %q", aws.ToString(client.input.QueueUrl))
	}
	if got := aws.ToString(client.input.MessageAttributes["gallery_id"].StringValue); got != "42" {
		t.Fatalf("gallery_id attribute = %q", got)
	}
	if client.input.MessageGroupId != nil {
		t.Fatalf("standard queue must not carry a group id")
	}

	var evt Event
	if err := json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &evt); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if evt.Kind != EventGalleryCreated || evt.MessageID != 7 || evt.Pages != 3 {
		t.Fatalf("unexpected event body %#v", evt)
	}
}

func TestSQSPublisherGroupsFIFOByGallery(t *testing.T) {
	client := &fakeSQSClient{}
	pub := newSQSPublisher("q", "https://sqs/relay.fifo", client, nil)

	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(client.input.MessageGroupId); got != "42" {
		t.Fatalf("group id = %q", got)
	}
	if aws.ToString(client.input.MessageDeduplicationId) == "" {
		t.Fatalf("expected deduplication id on fifo queue")
	}
}

func TestSQSPublisherWrapsError(t *testing.T) {
	boom := errors.New("boom")
	pub := newSQSPublisher("q", "https://sqs/queue", &fakeSQSClient{err: boom}, nil)
	if err := pub.Publish(context.Background(), sampleEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSNSPublisherSendsEvent(t *testing.T) {
	client := &fakeSNSClient{}
	pub := newSNSPublisher("t", "arn:aws:sns:x", client, nil)

	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if aws.ToString(client.input.TopicArn) != "arn:aws:sns:x" {
		t.Fatalf("unexpected topic %q", aws.ToString(client.input.TopicArn))
	}
	if got := aws.ToString(client.input.MessageAttributes["kind"].StringValue); got != EventGalleryCreated {
		t.Fatalf("kind attribute = %q", got)
	}

	var evt Event
	if err := json.Unmarshal([]byte(aws.ToString(client.input.Message)), &evt); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if evt.GalleryID != 42 || evt.ArticleURL != "https://telegra.ph/a" {
		t.Fatalf("unexpected event body %#v", evt)
	}
}

func TestSNSPublisherWrapsError(t *testing.T) {
	boom := errors.New("boom")
	pub := newSNSPublisher("t", "arn:aws:sns:x", &fakeSNSClient{err: boom}, nil)
	if err := pub.Publish(context.Background(), sampleEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
