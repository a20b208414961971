// Package kafka provides a Kafka-based implementation of the event bus for
// asynchronous messaging between the orchestrator and its external workers.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/internal/infra/eventbus/reliability"
	"github.com/draftforge/propeller/pkg/common/logger"
)

// BrokerMetrics defines metrics operations needed to monitor Kafka message
// handling.
type BrokerMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncMessageConsumed(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
	IncConsumeError(ctx context.Context, topic string)
}

// Config contains settings for connecting to and interacting with Kafka
// brokers.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// DocumentProgressTopic carries per-document updates pushed by the
	// analysis workers.
	DocumentProgressTopic string
	// PipelineLifecycleTopic carries stage completion, failure, trigger and
	// restart events emitted by the orchestrator.
	PipelineLifecycleTopic string

	// GroupID identifies the consumer group for this bus instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
}

var _ events.EventBus = (*KafkaEventBus)(nil)

// KafkaEventBus implements the EventBus interface using Kafka as the
// underlying message broker.
type KafkaEventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	// Maps domain event types to Kafka topic names.
	topics map[events.EventType]string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics BrokerMetrics
}

// NewKafkaEventBusFromConfig creates a Kafka-based event bus from the given
// configuration, wiring both producer and consumer components.
func NewKafkaEventBusFromConfig(
	cfg *Config,
	logger *logger.Logger,
	metrics BrokerMetrics,
	tracer trace.Tracer,
) (*KafkaEventBus, error) {
	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner
	producerConfig.ClientID = cfg.ClientID

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = cfg.ClientID
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Consumer.Group.Session.Timeout = 20 * time.Second
	consumerConfig.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	consumerConfig.Consumer.Offsets.AutoCommit.Enable = true
	consumerConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second
	consumerConfig.Version = sarama.V2_8_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	topicsMap := map[events.EventType]string{
		pipeline.EventTypeDocumentProgressed: cfg.DocumentProgressTopic,  // workers -> orchestrator
		pipeline.EventTypeStageCompleted:     cfg.PipelineLifecycleTopic, // orchestrator -> consumers
		pipeline.EventTypeStageFailed:        cfg.PipelineLifecycleTopic, // orchestrator -> consumers
		pipeline.EventTypeStageTriggered:     cfg.PipelineLifecycleTopic, // orchestrator -> consumers
		pipeline.EventTypeSessionRestarted:   cfg.PipelineLifecycleTopic, // orchestrator -> consumers
	}

	return &KafkaEventBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		topics:        topicsMap,
		logger:        logger,
		tracer:        tracer,
		metrics:       metrics,
	}, nil
}

// Publish sends a domain event envelope to the appropriate Kafka topic. It
// handles serialization, routing based on event type, and observability
// instrumentation.
func (k *KafkaEventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	topic, ok := k.topics[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type '%s', no topic mapped", event.Type)
	}

	ctx, span := startProducerSpan(ctx, topic, k.tracer)
	defer span.End()

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
		span.SetAttributes(attribute.String("event.key", event.Key))
	}

	payload := event.Payload
	if domainEvt, ok := event.Payload.(events.DomainEvent); ok {
		wire, err := toWirePayload(domainEvt)
		if err != nil {
			span.RecordError(err)
			return err
		}
		payload = wire
	}

	msgBytes, err := serializeEnvelope(event.Type, event.Timestamp, payload)
	if err != nil {
		span.RecordError(err)
		if k.metrics != nil {
			k.metrics.IncPublishError(ctx, topic)
		}
		return fmt.Errorf("failed to serialize payload for event %s: %w", event.Type, err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key), // Used for partition routing.
		Value: sarama.ByteEncoder(msgBytes),
	}
	injectTraceContext(ctx, kafkaMsg)

	partition, offset, sendErr := k.producer.SendMessage(kafkaMsg)
	if sendErr != nil {
		span.RecordError(sendErr)
		if k.metrics != nil {
			k.metrics.IncPublishError(ctx, topic)
		}
		// Progress updates are superseded by the next poll snapshot, so a
		// lost one is absorbed. Lifecycle events happen once and must
		// surface.
		if !reliability.IsCriticalEvent(event.Type) {
			k.logger.Warn(ctx, "dropped non-critical event after publish failure",
				"topic", topic, "event_type", event.Type, "error", sendErr)
			return nil
		}
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, sendErr)
	}

	if k.metrics != nil {
		k.metrics.IncMessagePublished(ctx, topic)
	}
	k.logger.Debug(ctx, "published message to kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"event_type", event.Type,
		"key", event.Key,
	)
	return nil
}

// Subscribe registers a handler function to process domain events of the
// specified types. Consumption runs in a background goroutine until ctx is
// canceled.
func (k *KafkaEventBus) Subscribe(
	ctx context.Context,
	eventTypes []events.EventType,
	handler events.HandlerFunc,
) error {
	ctx, span := k.tracer.Start(ctx, "kafka_event_bus.subscribe",
		trace.WithAttributes(attribute.String("component", "kafka_event_bus")))
	defer span.End()

	topicSet := make(map[string]struct{})
	for _, et := range eventTypes {
		topic, ok := k.topics[et]
		if !ok {
			span.RecordError(fmt.Errorf("subscribe: unknown event type %s", et))
			span.SetStatus(codes.Error, "unknown event type")
			return fmt.Errorf("subscribe: unknown event type %s", et)
		}
		topicSet[topic] = struct{}{}
	}

	var topics []string
	for t := range topicSet {
		topics = append(topics, t)
	}
	span.AddEvent("topics_collected", trace.WithAttributes(attribute.StringSlice("topics", topics)))

	go k.consumeLoop(ctx, topics, handler)
	k.logger.Info(ctx, "subscribed to events", "event_types", eventTypes)
	return nil
}

func (k *KafkaEventBus) consumeLoop(ctx context.Context, topics []string, handler events.HandlerFunc) {
	cgHandler := &domainEventHandler{
		userHandler: handler,
		logger:      k.logger,
		tracer:      k.tracer,
		metrics:     k.metrics,
	}

	for {
		if err := k.consumerGroup.Consume(ctx, topics, cgHandler); err != nil {
			k.logger.Error(ctx, "error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// domainEventHandler implements sarama.ConsumerGroupHandler, converting
// consumed Kafka messages into domain event envelopes.
type domainEventHandler struct {
	userHandler events.HandlerFunc

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics BrokerMetrics
}

func (h *domainEventHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(), "consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *domainEventHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(), "consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from an assigned partition, deserializing
// them into domain events and invoking the registered handler.
func (h *domainEventHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for msg := range claim.Messages() {
		msgCtx := extractTraceContext(sess.Context(), msg)
		msgCtx, span := startConsumerSpan(msgCtx, msg, h.tracer)

		var envelope wireEnvelope
		if err := decodeEnvelope(msg.Value, &envelope); err != nil {
			sess.MarkMessage(msg, "")
			span.RecordError(err)
			span.End()
			continue
		}

		payload, err := deserializePayload(envelope.EventType, envelope.Payload)
		if err != nil {
			sess.MarkMessage(msg, "")
			span.RecordError(err)
			span.End()
			continue
		}

		dEvent := events.EventEnvelope{
			Type:      envelope.EventType,
			Key:       string(msg.Key),
			Timestamp: envelope.OccurredAt,
			Payload:   payload,
		}

		if err := h.userHandler(msgCtx, dEvent); err != nil {
			if h.metrics != nil {
				h.metrics.IncConsumeError(msgCtx, msg.Topic)
			}
			h.logger.Error(msgCtx, "failed to handle message",
				"topic", msg.Topic, "event_type", envelope.EventType, "error", err)
			span.RecordError(err)
		} else if h.metrics != nil {
			h.metrics.IncMessageConsumed(msgCtx, msg.Topic)
		}

		sess.MarkMessage(msg, "")
		span.End()
	}
	return nil
}

// Close gracefully shuts down the event bus by closing both producer and
// consumer connections.
func (k *KafkaEventBus) Close() error {
	if err := k.producer.Close(); err != nil {
		return err
	}
	return k.consumerGroup.Close()
}
