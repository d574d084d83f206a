package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubBus layers a Google Cloud Pub/Sub topic under the in-memory Bus.
// Every emitted event goes to both: the topic gives downstream consumers
// durable at-least-once delivery, the in-memory fan-out feeds websocket
// stream subscribers with no broker round trip.
type PubSubBus struct {
	*Bus // embedded, Subscribe/Unsubscribe still work

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSubBus creates a Pub/Sub-backed event bus, creating the topic
// if it does not exist.
func NewPubSubBus(projectID, topicID string, logger *slog.Logger) (*PubSubBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		logger.Info("created pub/sub topic", "topic", topicID)
	}

	// Order events per tenant.
	topic.EnableMessageOrdering = true

	bus := &PubSubBus{
		Bus:    NewBus(),
		client: client,
		topic:  topic,
		logger: logger,
	}
	logger.Info("connected to pub/sub topic", "path", topic.String())
	return bus, nil
}

// Emit creates a CloudEvent, publishes it to Pub/Sub, and fans out to
// in-memory subscribers.
func (pb *PubSubBus) Emit(eventType, source, subject string, data map[string]interface{}) {
	event := NewCloudEvent(eventType, source, subject, data)
	pb.publishToPubSub(event)
	pb.Bus.Publish(event)
}

// PublishRaw sends an already-constructed CloudEvent to both sinks,
// bypassing envelope creation. Replay and forwarding paths use this.
func (pb *PubSubBus) PublishRaw(event *CloudEvent) {
	pb.publishToPubSub(event)
	pb.Bus.Publish(event)
}

// publishToPubSub serializes the CloudEvent as a Pub/Sub message.
// Message attributes mirror CloudEvents metadata for server-side
// filtering; the ordering key scopes ordering to one tenant.
func (pb *PubSubBus) publishToPubSub(event *CloudEvent) {
	payload, err := event.JSON()
	if err != nil {
		pb.logger.Warn("event marshal failed", "event_id", event.ID, "error", err)
		return
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-specversion": event.SpecVersion,
			"ce-type":        event.Type,
			"ce-source":      event.Source,
			"ce-id":          event.ID,
			"ce-time":        event.Time.Format(time.RFC3339Nano),
			"ce-tenantid":    event.TenantID,
		},
		OrderingKey: event.TenantID,
	}

	result := pb.topic.Publish(context.Background(), msg)

	// Check the result off the hot path.
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			pb.logger.Warn("pub/sub publish failed", "event_id", event.ID, "type", event.Type, "error", err)
		}
	}()
}

// Close flushes pending publishes and releases the client.
func (pb *PubSubBus) Close() error {
	pb.topic.Stop()
	if err := pb.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close: %w", err)
	}
	return nil
}

// TopicPath reports the projects/{project}/topics/{topic} path in use.
func (pb *PubSubBus) TopicPath() string {
	return pb.topic.String()
}

// HealthCheck confirms the backing topic still exists.
func (pb *PubSubBus) HealthCheck(ctx context.Context) error {
	exists, err := pb.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("topic health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("topic %s no longer exists", pb.topic.ID())
	}
	return nil
}

var _ Emitter = (*PubSubBus)(nil)
