package orchestration

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

// CompletionDecision is the outcome of one completion evaluation cycle.
type CompletionDecision int

const (
	// DecisionNone means nothing changed: the stage is either still running
	// or its completion was already claimed by an earlier cycle.
	DecisionNone CompletionDecision = iota

	// DecisionTriggerNext means the stage just completed with at least one
	// successful document and the next stage's trigger flag was claimed.
	DecisionTriggerNext

	// DecisionFailNext means every document errored: the stage completed
	// but the next stage was marked failed and must never be triggered.
	DecisionFailNext
)

// CompletionDetector fires the one-shot stage-completed signal. Evaluate
// performs the completeness check and sets the session's completion and
// trigger flags within the same synchronous call, so any later update in
// the serialized queue observes the flags already set and takes no action.
type CompletionDetector struct {
	logger *logger.Logger
	tracer trace.Tracer
}

// NewCompletionDetector creates a CompletionDetector.
func NewCompletionDetector(log *logger.Logger, tracer trace.Tracer) *CompletionDetector {
	return &CompletionDetector{logger: log, tracer: tracer}
}

// Evaluate checks whether the given stage has processed every document and,
// if so, claims the completion flag and decides the next stage's fate. It
// never blocks and performs no I/O; any asynchronous follow-up (the actual
// start call) belongs to the caller and happens after the flags are set.
func (d *CompletionDetector) Evaluate(
	ctx context.Context,
	session *pipeline.Session,
	stage pipeline.Stage,
	snap pipeline.JobSnapshot,
) CompletionDecision {
	if !snap.AllProcessed() || session.StageState(stage).Completed() {
		return DecisionNone
	}

	ctx, span := d.tracer.Start(ctx, "completion_detector.pipeline.evaluate",
		trace.WithAttributes(
			attribute.String("session_id", session.SessionID().String()),
			attribute.String("stage", stage.String()),
			attribute.Int("completed_count", snap.CompletedCount),
			attribute.Int("error_count", snap.ErrorCount),
			attribute.Int("total_count", snap.TotalCount),
		))
	defer span.End()

	if err := session.MarkStageCompleted(stage); err != nil {
		// Lost the claim; an earlier cycle already handled this stage.
		span.AddEvent("completion_already_claimed")
		return DecisionNone
	}
	span.AddEvent("stage_completed")
	d.logger.Info(ctx, "stage completed",
		"stage", stage.String(),
		"completed", snap.CompletedCount,
		"errored", snap.ErrorCount,
		"total", snap.TotalCount)

	next, ok := stage.Next()
	if !ok {
		return DecisionNone
	}

	if snap.AllFailed() {
		session.MarkStageFailed(next, "all documents failed analysis")
		span.AddEvent("next_stage_failed")
		d.logger.Error(ctx, "every document errored; next stage will not run",
			"stage", stage.String(),
			"next_stage", next.String())
		return DecisionFailNext
	}

	if err := session.MarkNextStageTriggered(stage); err != nil {
		span.AddEvent("trigger_already_claimed")
		return DecisionNone
	}
	span.AddEvent("next_stage_trigger_claimed")
	return DecisionTriggerNext
}
