package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/samvad-hq/gallery-relay/internal/logger"
)

// PubSubConfig targets a Google Cloud Pub/Sub topic.
type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

func checkPubSub(s *SinkConfig) error {
	if s.GCPPubSub == nil {
		return errors.New("gcp_pubsub block is required")
	}
	c := *s.GCPPubSub
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.Topic = strings.TrimSpace(c.Topic)
	c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
	if c.ProjectID == "" || c.Topic == "" {
		return errors.New("gcp_pubsub.project_id and gcp_pubsub.topic are required")
	}
	s.GCPPubSub = &c
	return nil
}

type pubSubPublisher struct {
	id     string
	client *pubsub.Client
	topic  *pubsub.Topic
	log    logger.Logger
}

func openPubSub(ctx context.Context, sink SinkConfig, log logger.Logger) (Publisher, error) {
	var opts []option.ClientOption
	if sink.GCPPubSub.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(sink.GCPPubSub.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, sink.GCPPubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return newPubSubPublisher(sink.ID, client, sink.GCPPubSub.Topic, log), nil
}

func newPubSubPublisher(id string, client *pubsub.Client, topic string, log logger.Logger) *pubSubPublisher {
	return &pubSubPublisher{
		id:     id,
		client: client,
		topic:  client.Topic(topic),
		log:    logger.Ensure(log),
	}
}

func (g *pubSubPublisher) ID() string   { return g.id }
func (g *pubSubPublisher) Type() string { return TypeGCPPubSub }

// Publish blocks until the server acknowledges the message.
func (g *pubSubPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := g.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: messageAttributes(evt, func(v string) string { return v }),
	})
	serverID, err := result.Get(ctx)
	if err != nil {
		g.log.ErrorObj("pubsub publish failed", "publisher_pubsub_error", map[string]any{
			"publisher_id": g.id,
			"gallery_id":   evt.GalleryID,
			"error":        err.Error(),
		})
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	g.log.DebugObj("pubsub delivered event", "publisher_pubsub_delivery", map[string]any{
		"publisher_id": g.id,
		"server_id":    serverID,
	})
	return nil
}

// Close flushes pending messages and releases the client.
func (g *pubSubPublisher) Close() error {
	g.topic.Stop()
	return g.client.Close()
}
