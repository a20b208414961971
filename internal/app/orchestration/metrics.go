package orchestration

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrchestrationMetrics records pipeline-level telemetry through the OTel
// metric API.
type OrchestrationMetrics struct {
	fetchesTotal     metric.Int64Counter
	fetchFailures    metric.Int64Counter
	pushUpdates      metric.Int64Counter
	stageTransitions metric.Int64Counter
	fetchDuration    metric.Float64Histogram

	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter
}

// NewOrchestrationMetrics registers the orchestrator's instruments on the
// given provider.
func NewOrchestrationMetrics(mp metric.MeterProvider) (*OrchestrationMetrics, error) {
	meter := mp.Meter("github.com/draftforge/propeller/internal/app/orchestration")

	fetchesTotal, err := meter.Int64Counter("pipeline_fetches_total",
		metric.WithDescription("Total snapshot fetches issued by the poller"))
	if err != nil {
		return nil, fmt.Errorf("creating fetches counter: %w", err)
	}

	fetchFailures, err := meter.Int64Counter("pipeline_fetch_failures_total",
		metric.WithDescription("Snapshot fetches that failed transiently"))
	if err != nil {
		return nil, fmt.Errorf("creating fetch failures counter: %w", err)
	}

	pushUpdates, err := meter.Int64Counter("pipeline_push_updates_total",
		metric.WithDescription("Document updates received as push notifications"))
	if err != nil {
		return nil, fmt.Errorf("creating push updates counter: %w", err)
	}

	stageTransitions, err := meter.Int64Counter("pipeline_stage_transitions_total",
		metric.WithDescription("Stage transitions triggered"))
	if err != nil {
		return nil, fmt.Errorf("creating stage transitions counter: %w", err)
	}

	fetchDuration, err := meter.Float64Histogram("pipeline_fetch_duration_seconds",
		metric.WithDescription("Snapshot fetch latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating fetch duration histogram: %w", err)
	}

	messagesPublished, err := meter.Int64Counter("messages_published_total",
		metric.WithDescription("Total messages published to the event bus"))
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	messagesConsumed, err := meter.Int64Counter("messages_consumed_total",
		metric.WithDescription("Total messages consumed from the event bus"))
	if err != nil {
		return nil, fmt.Errorf("creating consumed counter: %w", err)
	}

	publishErrors, err := meter.Int64Counter("message_publish_errors_total",
		metric.WithDescription("Event bus publish failures"))
	if err != nil {
		return nil, fmt.Errorf("creating publish errors counter: %w", err)
	}

	consumeErrors, err := meter.Int64Counter("message_consume_errors_total",
		metric.WithDescription("Event bus consume failures"))
	if err != nil {
		return nil, fmt.Errorf("creating consume errors counter: %w", err)
	}

	return &OrchestrationMetrics{
		fetchesTotal:      fetchesTotal,
		fetchFailures:     fetchFailures,
		pushUpdates:       pushUpdates,
		stageTransitions:  stageTransitions,
		fetchDuration:     fetchDuration,
		messagesPublished: messagesPublished,
		messagesConsumed:  messagesConsumed,
		publishErrors:     publishErrors,
		consumeErrors:     consumeErrors,
	}, nil
}

// IncMessagePublished counts one message published to the event bus.
func (m *OrchestrationMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// IncMessageConsumed counts one message consumed from the event bus.
func (m *OrchestrationMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// IncPublishError counts one event bus publish failure.
func (m *OrchestrationMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// IncConsumeError counts one event bus consume failure.
func (m *OrchestrationMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// IncFetch counts one issued snapshot fetch.
func (m *OrchestrationMetrics) IncFetch(ctx context.Context) {
	m.fetchesTotal.Add(ctx, 1)
}

// IncFetchFailure counts one transient fetch failure.
func (m *OrchestrationMetrics) IncFetchFailure(ctx context.Context) {
	m.fetchFailures.Add(ctx, 1)
}

// IncPushUpdate counts one push-delivered document update.
func (m *OrchestrationMetrics) IncPushUpdate(ctx context.Context) {
	m.pushUpdates.Add(ctx, 1)
}

// IncStageTransition counts one triggered stage transition.
func (m *OrchestrationMetrics) IncStageTransition(ctx context.Context, from, to string) {
	m.stageTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from_stage", from),
		attribute.String("to_stage", to),
	))
}

// ObserveFetchDuration records one fetch's latency.
func (m *OrchestrationMetrics) ObserveFetchDuration(ctx context.Context, d time.Duration) {
	m.fetchDuration.Record(ctx, d.Seconds())
}
