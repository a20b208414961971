package orchestration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

func newDetectorFixture(t *testing.T) (*CompletionDetector, *pipeline.Session) {
	t.Helper()
	detector := NewCompletionDetector(logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	session := pipeline.NewSession(uuid.New(), uuid.New(), newFakeClock())
	require.NoError(t, session.AdvanceTo(pipeline.StageDocumentAnalysis))
	require.NoError(t, session.StartStage(pipeline.StageDocumentAnalysis))
	return detector, session
}

func snapshotOf(completed, analyzing, errored int) pipeline.JobSnapshot {
	var views []pipeline.DocumentJobView
	add := func(n int, status pipeline.DocumentStatus) {
		for i := 0; i < n; i++ {
			views = append(views, pipeline.DocumentJobView{ID: uuid.New(), Status: status})
		}
	}
	add(completed, pipeline.DocumentStatusCompleted)
	add(analyzing, pipeline.DocumentStatusAnalyzing)
	add(errored, pipeline.DocumentStatusError)
	return pipeline.NewJobSnapshot(views)
}

func TestCompletionDetectorFiresExactlyOnce(t *testing.T) {
	detector, session := newDetectorFixture(t)
	ctx := context.Background()
	snap := snapshotOf(3, 0, 1)

	got := detector.Evaluate(ctx, session, pipeline.StageDocumentAnalysis, snap)
	require.Equal(t, DecisionTriggerNext, got)
	assert.True(t, session.StageState(pipeline.StageDocumentAnalysis).Completed())
	assert.True(t, session.StageState(pipeline.StageDocumentAnalysis).NextTriggered())

	// Re-evaluating the same snapshot any number of times yields no action.
	for i := 0; i < 5; i++ {
		assert.Equal(t, DecisionNone, detector.Evaluate(ctx, session, pipeline.StageDocumentAnalysis, snap))
	}
}

func TestCompletionDetectorWaitsForAllProcessed(t *testing.T) {
	detector, session := newDetectorFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		snap pipeline.JobSnapshot
	}{
		{name: "documents still analyzing", snap: snapshotOf(3, 1, 0)},
		{name: "empty job set", snap: snapshotOf(0, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.Evaluate(ctx, session, pipeline.StageDocumentAnalysis, tt.snap)
			assert.Equal(t, DecisionNone, got)
			assert.False(t, session.StageState(pipeline.StageDocumentAnalysis).Completed())
		})
	}
}

func TestCompletionDetectorTotalFailure(t *testing.T) {
	detector, session := newDetectorFixture(t)
	ctx := context.Background()
	snap := snapshotOf(0, 0, 4)

	got := detector.Evaluate(ctx, session, pipeline.StageDocumentAnalysis, snap)
	require.Equal(t, DecisionFailNext, got)

	doc := session.StageState(pipeline.StageDocumentAnalysis)
	question := session.StageState(pipeline.StageQuestionGeneration)
	assert.True(t, doc.Completed())
	assert.False(t, doc.NextTriggered(), "trigger flag must stay false forever for this run")
	assert.Equal(t, pipeline.StageStatusFailed, question.Status())
	assert.Equal(t, pipeline.SessionStatusFailed, session.Status())

	// Later cycles observe the completion flag and change nothing.
	assert.Equal(t, DecisionNone, detector.Evaluate(ctx, session, pipeline.StageDocumentAnalysis, snap))
	assert.False(t, session.StageState(pipeline.StageDocumentAnalysis).NextTriggered())
}

func TestCompletionDetectorPartialFailureStillAdvances(t *testing.T) {
	detector, session := newDetectorFixture(t)
	ctx := context.Background()

	// One success is enough to carry the pipeline forward.
	got := detector.Evaluate(ctx, session, pipeline.StageDocumentAnalysis, snapshotOf(1, 0, 3))
	assert.Equal(t, DecisionTriggerNext, got)
	assert.True(t, session.StageState(pipeline.StageDocumentAnalysis).NextTriggered())
}
