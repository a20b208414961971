package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

type mockDocWorker struct{ mock.Mock }

func (m *mockDocWorker) Start(ctx context.Context, sessionID, projectID uuid.UUID) (int, error) {
	args := m.Called(ctx, sessionID, projectID)
	return args.Int(0), args.Error(1)
}

type mockQuestionWorker struct{ mock.Mock }

func (m *mockQuestionWorker) Start(ctx context.Context, sessionID uuid.UUID, opts pipeline.QuestionGenerationOptions) (int, error) {
	args := m.Called(ctx, sessionID, opts)
	return args.Int(0), args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func newCoordinatorFixture(settle time.Duration) (*StageTransitionCoordinator, *mockDocWorker, *mockQuestionWorker, *mockPublisher) {
	docWorker := new(mockDocWorker)
	questionWorker := new(mockQuestionWorker)
	publisher := new(mockPublisher)

	c := NewStageTransitionCoordinator(
		docWorker,
		questionWorker,
		pipeline.QuestionGenerationOptions{MaxQuestions: 8},
		publisher,
		settle,
		100*time.Millisecond,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)
	return c, docWorker, questionWorker, publisher
}

func TestCoordinatorStartQuestionGeneration(t *testing.T) {
	c, _, questionWorker, publisher := newCoordinatorFixture(0)
	sessionID, projectID := uuid.New(), uuid.New()

	questionWorker.On("Start", mock.Anything, sessionID, mock.Anything).Return(12, nil)
	publisher.On("PublishDomainEvent", mock.Anything, mock.AnythingOfType("pipeline.StageTriggeredEvent")).Return(nil)

	res := c.Start(context.Background(), sessionID, projectID,
		pipeline.StageDocumentAnalysis, pipeline.StageQuestionGeneration)

	require.NoError(t, res.Err)
	assert.Equal(t, 12, res.Count)
	assert.Equal(t, pipeline.StageQuestionGeneration, res.To)
	questionWorker.AssertNumberOfCalls(t, "Start", 1)
	publisher.AssertExpectations(t)
}

func TestCoordinatorStartFailureIsTerminal(t *testing.T) {
	c, docWorker, _, publisher := newCoordinatorFixture(0)
	sessionID, projectID := uuid.New(), uuid.New()

	startErr := errors.New("worker unavailable")
	docWorker.On("Start", mock.Anything, sessionID, projectID).Return(0, startErr)

	res := c.Start(context.Background(), sessionID, projectID,
		pipeline.StageSetup, pipeline.StageDocumentAnalysis)

	require.ErrorIs(t, res.Err, startErr)
	publisher.AssertNotCalled(t, "PublishDomainEvent", mock.Anything, mock.Anything)
}

func TestCoordinatorStartTimeoutMapsToSentinel(t *testing.T) {
	c, docWorker, _, _ := newCoordinatorFixture(0)
	sessionID, projectID := uuid.New(), uuid.New()

	docWorker.On("Start", mock.Anything, sessionID, projectID).Return(0, context.DeadlineExceeded)

	res := c.Start(context.Background(), sessionID, projectID,
		pipeline.StageSetup, pipeline.StageDocumentAnalysis)

	require.ErrorIs(t, res.Err, ErrStartTimeout)
}

func TestCoordinatorSettleDelayRespectsCancellation(t *testing.T) {
	c, docWorker, _, _ := newCoordinatorFixture(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Start(ctx, uuid.New(), uuid.New(),
		pipeline.StageSetup, pipeline.StageDocumentAnalysis)

	require.ErrorIs(t, res.Err, context.Canceled)
	docWorker.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinatorRejectsStagesWithoutWorkers(t *testing.T) {
	c, _, _, _ := newCoordinatorFixture(0)

	res := c.Start(context.Background(), uuid.New(), uuid.New(),
		pipeline.StageQuestionGeneration, pipeline.StageReport)

	require.Error(t, res.Err)
	assert.NotErrorIs(t, res.Err, ErrStartTimeout)
}
