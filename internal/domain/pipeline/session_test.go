package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	tp := &mockTimeProvider{current: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	return NewSession(uuid.New(), uuid.New(), tp)
}

func TestSessionAdvanceForwardOnly(t *testing.T) {
	s := newTestSession(t)
	require.Equal(t, StageSetup, s.CurrentStage())

	require.NoError(t, s.AdvanceTo(StageDocumentAnalysis))
	assert.Equal(t, StageDocumentAnalysis, s.CurrentStage())

	err := s.AdvanceTo(StageSetup)
	require.Error(t, err)
	assert.Equal(t, StageDocumentAnalysis, s.CurrentStage())
}

func TestSessionMarkStageCompletedIsOneShot(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.StartStage(StageDocumentAnalysis))

	require.NoError(t, s.MarkStageCompleted(StageDocumentAnalysis))
	assert.True(t, s.StageState(StageDocumentAnalysis).Completed())
	assert.Equal(t, StageStatusCompleted, s.StageState(StageDocumentAnalysis).Status())
	assert.Equal(t, 100, s.StageState(StageDocumentAnalysis).Progress())

	// Every subsequent attempt must observe the flag and take no action.
	for i := 0; i < 3; i++ {
		err := s.MarkStageCompleted(StageDocumentAnalysis)
		require.ErrorIs(t, err, ErrStageAlreadyCompleted)
	}
}

func TestSessionMarkNextStageTriggeredIsOneShot(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.MarkNextStageTriggered(StageDocumentAnalysis))
	assert.True(t, s.StageState(StageDocumentAnalysis).NextTriggered())

	err := s.MarkNextStageTriggered(StageDocumentAnalysis)
	require.ErrorIs(t, err, ErrNextStageAlreadyTriggered)
}

func TestSessionStageProgressIsMonotone(t *testing.T) {
	s := newTestSession(t)

	s.SetStageProgress(StageDocumentAnalysis, 40, "")
	s.SetStageProgress(StageDocumentAnalysis, 25, "")
	assert.Equal(t, 40, s.StageState(StageDocumentAnalysis).Progress())

	s.SetStageProgress(StageDocumentAnalysis, 250, "")
	assert.Equal(t, 100, s.StageState(StageDocumentAnalysis).Progress())
}

func TestSessionMarkStageFailed(t *testing.T) {
	s := newTestSession(t)

	s.MarkStageFailed(StageQuestionGeneration, "all documents errored")

	st := s.StageState(StageQuestionGeneration)
	assert.Equal(t, StageStatusFailed, st.Status())
	assert.Equal(t, "all documents errored", st.Message())
	assert.Equal(t, SessionStatusFailed, s.Status())
	assert.False(t, st.NextTriggered())

	// Failing a terminal stage again is a no-op.
	s.MarkStageFailed(StageQuestionGeneration, "other reason")
	assert.Equal(t, "all documents errored", s.StageState(StageQuestionGeneration).Message())
}

func TestSessionRestartResetsEverything(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.AdvanceTo(StageDocumentAnalysis))
	require.NoError(t, s.StartStage(StageDocumentAnalysis))
	s.SetStageProgress(StageDocumentAnalysis, 80, "")
	require.NoError(t, s.MarkStageCompleted(StageDocumentAnalysis))
	require.NoError(t, s.MarkNextStageTriggered(StageDocumentAnalysis))
	s.MarkStageFailed(StageQuestionGeneration, "boom")

	s.Restart()

	assert.Equal(t, StageSetup, s.CurrentStage())
	assert.Equal(t, SessionStatusActive, s.Status())
	for _, stage := range []Stage{StageSetup, StageDocumentAnalysis, StageQuestionGeneration, StageReport} {
		st := s.StageState(stage)
		assert.Equal(t, StageStatusPending, st.Status(), "stage %s status", stage)
		assert.Zero(t, st.Progress(), "stage %s progress", stage)
		assert.False(t, st.Completed(), "stage %s completed flag", stage)
		assert.False(t, st.NextTriggered(), "stage %s trigger flag", stage)
	}
}
