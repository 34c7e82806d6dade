package queue

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/logging"
)

// PubSubProvider implements Provider for Google Cloud Pub/Sub.
type PubSubProvider struct {
	Client *pubsub.Client
	Topic  *pubsubpb.Topic
}

func fullTopicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

// NewPubSubProvider creates a Pub/Sub client and verifies the topic is
// active. Authentication goes through Application Default Credentials.
func NewPubSubProvider(ctx context.Context, projectID, topicID string) (*PubSubProvider, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	request := &pubsubpb.GetTopicRequest{
		Topic: fullTopicName(projectID, topicID),
	}
	topic, err := client.TopicAdminClient.GetTopic(ctx, request)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close pubsub client after topic retrieval failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get pubsub topic '%s': %w", topicID, err)
	}
	if topic.State != pubsubpb.Topic_ACTIVE {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close pubsub client after topic state check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic '%s' in project '%s' is not active", topicID, projectID)
	}

	return &PubSubProvider{
		Client: client,
		Topic:  topic,
	}, nil
}

// Publish sends one message and blocks until the server acknowledges it.
// The session state machine depends on this being synchronous: a session
// is only marked Published after the broker accepted the event.
func (p *PubSubProvider) Publish(ctx context.Context, data []byte, attributes map[string]string) error {
	msg := &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	}

	publisher := p.Client.Publisher(p.Topic.Name)
	result := publisher.Publish(ctx, msg)

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish message to '%s': %w", p.Topic.Name, err)
	}
	return nil
}

// Close stops the publisher and closes the underlying client connection.
func (p *PubSubProvider) Close() error {
	if err := p.Client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
