// Package feed carries response change events between writers and live views.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"live-response-service/internal/domain"
)

// Feed publishes and subscribes to per-question change topics.
type Feed struct {
	publisher   message.Publisher
	subscriber  message.Subscriber
	topicPrefix string
	logger      *slog.Logger
}

// KafkaConfig configures the Kafka backed feed.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// NewInMemory returns a feed backed by watermill's go channel pub/sub.
// Events published while nobody is subscribed are discarded. Publish waits for
// subscribers to ack so events reach each view in publish order.
func NewInMemory(topicPrefix string, logger *slog.Logger) *Feed {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NewSlogLogger(logger))
	return &Feed{
		publisher:   pubSub,
		subscriber:  pubSub,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

// NewKafka returns a feed shared between service instances through Kafka.
// Subscribers use no consumer group so every live view sees every event,
// starting from the newest offset.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Feed, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka feed: no brokers configured")
	}
	wmLogger := watermill.NewSlogLogger(logger)

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	saramaCfg := kafka.DefaultSaramaSubscriberConfig()
	saramaCfg.Consumer.Offsets.Initial = -1 // newest
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.Brokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: saramaCfg,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}

	return &Feed{
		publisher:   publisher,
		subscriber:  subscriber,
		topicPrefix: cfg.TopicPrefix,
		logger:      logger,
	}, nil
}

// Topic is the topic name for one question.
func (f *Feed) Topic(questionID string) string {
	if f.topicPrefix == "" {
		return questionID
	}
	return f.topicPrefix + "." + questionID
}

// Publish sends ev on the topic of its question.
func (f *Feed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	if ev.Response.QuestionID == "" {
		return errors.New("change event without question id")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("kind", string(ev.Kind))
	msg.Metadata.Set("question_id", ev.Response.QuestionID)
	msg.Metadata.Set("response_id", ev.Response.ID)

	topic := f.Topic(ev.Response.QuestionID)
	if err := f.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	f.logger.Debug("published change event",
		"topic", topic,
		"kind", ev.Kind,
		"response_id", ev.Response.ID)
	return nil
}

// Subscribe streams the events of one question until ctx ends.
// Undecodable messages are acked and dropped.
func (f *Feed) Subscribe(ctx context.Context, questionID string) (<-chan domain.ChangeEvent, error) {
	topic := f.Topic(questionID)
	messages, err := f.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan domain.ChangeEvent, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev domain.ChangeEvent
				err := json.Unmarshal(msg.Payload, &ev)
				msg.Ack()
				if err != nil {
					f.logger.Warn("dropping undecodable change event",
						"topic", topic,
						"message_uuid", msg.UUID,
						"error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the publisher and subscriber.
func (f *Feed) Close() error {
	pubErr := f.publisher.Close()
	var subErr error
	if any(f.subscriber) != any(f.publisher) {
		subErr = f.subscriber.Close()
	}
	return errors.Join(pubErr, subErr)
}
