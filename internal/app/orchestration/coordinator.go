package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

// ErrStartTimeout is returned when a stage's start call does not confirm
// within the configured bound. The stage is left untouched: the external
// worker may still come up and be observed on a later poll.
var ErrStartTimeout = errors.New("stage start confirmation timed out")

// StartResult reports the outcome of one start call back to the serialized
// update loop.
type StartResult struct {
	From  pipeline.Stage
	To    pipeline.Stage
	Count int
	Err   error
}

// StageTransitionCoordinator performs the asynchronous half of a stage
// transition: the external worker's start call. The trigger flag is always
// claimed synchronously by the CompletionDetector before anything here
// runs, so each transition's start call happens at most once per session
// run. There is no automatic retry; a failed start surfaces as a failed
// stage.
type StageTransitionCoordinator struct {
	docWorker      pipeline.DocumentAnalysisWorker
	questionWorker pipeline.QuestionGenerationWorker
	questionOpts   pipeline.QuestionGenerationOptions

	publisher events.DomainEventPublisher

	// settleDelay lets final state writes from the prior stage land before
	// the next worker starts. It never gates flag setting.
	settleDelay  time.Duration
	startTimeout time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// NewStageTransitionCoordinator creates a StageTransitionCoordinator.
func NewStageTransitionCoordinator(
	docWorker pipeline.DocumentAnalysisWorker,
	questionWorker pipeline.QuestionGenerationWorker,
	questionOpts pipeline.QuestionGenerationOptions,
	publisher events.DomainEventPublisher,
	settleDelay time.Duration,
	startTimeout time.Duration,
	log *logger.Logger,
	tracer trace.Tracer,
) *StageTransitionCoordinator {
	return &StageTransitionCoordinator{
		docWorker:      docWorker,
		questionWorker: questionWorker,
		questionOpts:   questionOpts,
		publisher:      publisher,
		settleDelay:    settleDelay,
		startTimeout:   startTimeout,
		logger:         log,
		tracer:         tracer,
	}
}

// Start launches the external worker for the target stage. It waits out the
// settle delay, bounds the confirmation wait, and maps a deadline overrun to
// ErrStartTimeout. Safe to call from any goroutine; the caller feeds the
// result back through the serialized update path.
func (c *StageTransitionCoordinator) Start(
	ctx context.Context,
	sessionID, projectID uuid.UUID,
	from, to pipeline.Stage,
) StartResult {
	ctx, span := c.tracer.Start(ctx, "stage_coordinator.pipeline.start",
		trace.WithAttributes(
			attribute.String("session_id", sessionID.String()),
			attribute.String("from_stage", from.String()),
			attribute.String("to_stage", to.String()),
		))
	defer span.End()

	if c.settleDelay > 0 {
		select {
		case <-time.After(c.settleDelay):
		case <-ctx.Done():
			return StartResult{From: from, To: to, Err: ctx.Err()}
		}
		span.AddEvent("settle_delay_elapsed")
	}

	startCtx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()

	var (
		count int
		err   error
	)
	switch to {
	case pipeline.StageDocumentAnalysis:
		count, err = c.docWorker.Start(startCtx, sessionID, projectID)
	case pipeline.StageQuestionGeneration:
		count, err = c.questionWorker.Start(startCtx, sessionID, c.questionOpts)
	default:
		err = fmt.Errorf("no external worker for stage %s", to)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: stage %s", ErrStartTimeout, to)
			span.AddEvent("start_confirmation_timed_out")
			c.logger.Warn(ctx, "stage start not confirmed within bound; leaving state unchanged",
				"to_stage", to.String(),
				"timeout", c.startTimeout.String())
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage start failed")
		}
		return StartResult{From: from, To: to, Err: err}
	}

	span.AddEvent("worker_started", trace.WithAttributes(attribute.Int("count", count)))
	span.SetStatus(codes.Ok, "stage started")

	evt := pipeline.NewStageTriggeredEvent(sessionID, from, to)
	if perr := c.publisher.PublishDomainEvent(ctx, evt, events.WithKey(sessionID.String())); perr != nil {
		c.logger.Warn(ctx, "failed to publish stage triggered event", "error", perr.Error())
	}

	return StartResult{From: from, To: to, Count: count}
}
