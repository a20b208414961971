package orchestration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	mnoop "go.opentelemetry.io/otel/metric/noop"
	tnoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

type mockStateStore struct{ mock.Mock }

func (m *mockStateStore) GetStageProgress(ctx context.Context, sessionID uuid.UUID) (map[pipeline.Stage]pipeline.StageProgressRecord, error) {
	args := m.Called(ctx, sessionID)
	if v := args.Get(0); v != nil {
		return v.(map[pipeline.Stage]pipeline.StageProgressRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStateStore) GetDocumentStatuses(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]pipeline.DocumentStatusRecord, error) {
	args := m.Called(ctx, sessionID)
	if v := args.Get(0); v != nil {
		return v.(map[uuid.UUID]pipeline.DocumentStatusRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStateStore) UpdateStageProgress(ctx context.Context, sessionID uuid.UUID, stage pipeline.Stage, percent int, message string) error {
	args := m.Called(ctx, sessionID, stage, percent, message)
	return args.Error(0)
}

func (m *mockStateStore) UpdateSessionStatus(ctx context.Context, sessionID uuid.UUID, status pipeline.SessionStatus) error {
	args := m.Called(ctx, sessionID, status)
	return args.Error(0)
}

type orchestratorFixture struct {
	o              *Orchestrator
	session        *pipeline.Session
	store          *mockStateStore
	docWorker      *mockDocWorker
	questionWorker *mockQuestionWorker
	publisher      *mockPublisher
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	store := new(mockStateStore)
	store.On("UpdateStageProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("UpdateSessionStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	return newOrchestratorFixtureWith(t, store)
}

// newOrchestratorFixtureWith builds a fixture around a caller-prepared store
// mock, for tests that need store calls to fail.
func newOrchestratorFixtureWith(t *testing.T, store *mockStateStore) *orchestratorFixture {
	t.Helper()

	docWorker := new(mockDocWorker)
	questionWorker := new(mockQuestionWorker)

	publisher := new(mockPublisher)
	publisher.On("PublishDomainEvent", mock.Anything, mock.Anything).Return(nil).Maybe()

	cfg := DefaultConfig()
	cfg.MinProgressDelta = 0
	cfg.SettleDelay = 0
	cfg.StartTimeout = time.Second
	cfg.PersistTimeout = time.Second

	metrics, err := NewOrchestrationMetrics(mnoop.NewMeterProvider())
	require.NoError(t, err)

	session := pipeline.NewSession(uuid.New(), uuid.New(), newFakeClock())
	o := NewOrchestrator(
		cfg,
		session,
		store,
		docWorker,
		questionWorker,
		publisher,
		metrics,
		newFakeClock(),
		logger.Noop(),
		tnoop.NewTracerProvider().Tracer("test"),
	)

	return &orchestratorFixture{
		o:              o,
		session:        session,
		store:          store,
		docWorker:      docWorker,
		questionWorker: questionWorker,
		publisher:      publisher,
	}
}

// applyNextStart waits for the asynchronous start call's result command and
// applies it, keeping the test fully deterministic.
func (f *orchestratorFixture) applyNextStart(t *testing.T, ctx context.Context) StartResult {
	t.Helper()
	select {
	case cmd := <-f.o.commands:
		res, ok := cmd.(startResultCmd)
		require.True(t, ok, "expected start result, got %T", cmd)
		f.o.apply(ctx, cmd)
		return res.res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for start result")
		return StartResult{}
	}
}

// bootstrap runs the pipeline into the document-analysis stage.
func (f *orchestratorFixture) bootstrap(t *testing.T, ctx context.Context, totalDocs int) {
	t.Helper()
	f.docWorker.On("Start", mock.Anything, f.session.SessionID(), f.session.ProjectID()).Return(totalDocs, nil)
	f.o.apply(ctx, bootstrapCmd{})
	res := f.applyNextStart(t, ctx)
	require.NoError(t, res.Err)
	require.Equal(t, pipeline.StageDocumentAnalysis, f.session.CurrentStage())
}

func docRecords(completed, analyzing, errored int) map[uuid.UUID]pipeline.DocumentStatusRecord {
	records := make(map[uuid.UUID]pipeline.DocumentStatusRecord)
	add := func(n int, status pipeline.DocumentStatus, progress int) {
		for i := 0; i < n; i++ {
			records[uuid.New()] = pipeline.DocumentStatusRecord{
				Name:     fmt.Sprintf("doc-%s", status),
				Status:   status,
				Progress: progress,
			}
		}
	}
	add(completed, pipeline.DocumentStatusCompleted, 100)
	add(analyzing, pipeline.DocumentStatusAnalyzing, 50)
	add(errored, pipeline.DocumentStatusError, 0)
	return records
}

func TestOrchestratorBootstrapStartsDocumentAnalysis(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	var stages []pipeline.Stage
	f.o.OnStageChange(func(s pipeline.Stage) { stages = append(stages, s) })

	f.bootstrap(t, ctx, 3)

	assert.Equal(t, []pipeline.Stage{pipeline.StageDocumentAnalysis}, stages)
	assert.Equal(t, pipeline.StageStatusProcessing, f.session.StageState(pipeline.StageDocumentAnalysis).Status())
	assert.NotEmpty(t, f.o.Activity())
	f.docWorker.AssertNumberOfCalls(t, "Start", 1)
}

func TestOrchestratorTriggersNextStageExactlyOnce(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 3)

	f.questionWorker.On("Start", mock.Anything, f.session.SessionID(), mock.Anything).Return(7, nil)

	records := docRecords(2, 0, 1)
	snap := snapshotFetched{observedStage: pipeline.StageDocumentAnalysis, docs: records}

	f.o.apply(ctx, snap)
	res := f.applyNextStart(t, ctx)
	require.NoError(t, res.Err)

	assert.Equal(t, pipeline.StageQuestionGeneration, f.session.CurrentStage())
	assert.Equal(t, pipeline.StageStatusProcessing, f.session.StageState(pipeline.StageQuestionGeneration).Status())
	assert.True(t, f.session.StageState(pipeline.StageDocumentAnalysis).NextTriggered())

	// Replays of the same snapshot, stale or current, must not retrigger.
	f.o.apply(ctx, snap)
	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageQuestionGeneration, docs: records})
	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageQuestionGeneration, docs: records})

	f.questionWorker.AssertNumberOfCalls(t, "Start", 1)
}

func TestOrchestratorTotalFailureHaltsPipeline(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 2)

	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageDocumentAnalysis,
		docs:          docRecords(0, 0, 2),
	})

	question := f.session.StageState(pipeline.StageQuestionGeneration)
	assert.Equal(t, pipeline.StageStatusFailed, question.Status())
	assert.False(t, f.session.StageState(pipeline.StageDocumentAnalysis).NextTriggered())
	assert.Equal(t, pipeline.SessionStatusFailed, f.session.Status())
	assert.Equal(t, CadenceStopped, f.o.poller.Cadence())
	f.questionWorker.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestratorStaleSnapshotDiscarded(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 2)

	f.questionWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageDocumentAnalysis, docs: docRecords(2, 0, 0)})
	f.applyNextStart(t, ctx)
	require.Equal(t, pipeline.StageQuestionGeneration, f.session.CurrentStage())

	before := f.o.tracker.Snapshot().TotalCount

	// A slow fetch started during document analysis resolves late; its
	// contents must not apply.
	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageDocumentAnalysis,
		docs:          docRecords(0, 3, 0),
	})

	assert.Equal(t, before, f.o.tracker.Snapshot().TotalCount)
}

func TestOrchestratorPushUpdatesDriveCompletion(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 2)

	f.questionWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(4, nil)

	docA, docB := uuid.New(), uuid.New()
	push := func(docID uuid.UUID, status pipeline.DocumentStatus, progress int) {
		f.o.apply(ctx, pushUpdate{evt: pipeline.NewDocumentProgressedEvent(
			f.session.SessionID(), docID, status, progress, "")})
	}

	push(docA, pipeline.DocumentStatusAnalyzing, 20)
	push(docB, pipeline.DocumentStatusAnalyzing, 10)
	assert.Equal(t, CadenceFast, f.o.poller.Cadence())

	push(docA, pipeline.DocumentStatusCompleted, 100)
	f.questionWorker.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)

	push(docB, pipeline.DocumentStatusCompleted, 100)
	res := f.applyNextStart(t, ctx)
	require.NoError(t, res.Err)

	assert.Equal(t, pipeline.StageQuestionGeneration, f.session.CurrentStage())
	f.questionWorker.AssertNumberOfCalls(t, "Start", 1)
}

func TestOrchestratorStartFailureMarksStageFailed(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 1)

	f.questionWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Return(0, errors.New("worker rejected session"))

	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageDocumentAnalysis, docs: docRecords(1, 0, 0)})
	res := f.applyNextStart(t, ctx)
	require.Error(t, res.Err)

	question := f.session.StageState(pipeline.StageQuestionGeneration)
	assert.Equal(t, pipeline.StageStatusFailed, question.Status())
	assert.Contains(t, question.Message(), "worker rejected session")
	assert.Equal(t, pipeline.SessionStatusFailed, f.session.Status())
}

func TestOrchestratorStartTimeoutLeavesStateUnchanged(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 1)

	f.questionWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Return(0, context.DeadlineExceeded)

	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageDocumentAnalysis, docs: docRecords(1, 0, 0)})
	res := f.applyNextStart(t, ctx)
	require.ErrorIs(t, res.Err, ErrStartTimeout)

	// The worker may still come up; the stage is left as-is for a later
	// poll to observe, not failed.
	question := f.session.StageState(pipeline.StageQuestionGeneration)
	assert.Equal(t, pipeline.StageStatusPending, question.Status())
	assert.NotEqual(t, pipeline.SessionStatusFailed, f.session.Status())
}

func TestOrchestratorQuestionStageCompletionFromStore(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 1)

	f.questionWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(3, nil)
	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageDocumentAnalysis, docs: docRecords(1, 0, 0)})
	f.applyNextStart(t, ctx)
	require.Equal(t, pipeline.StageQuestionGeneration, f.session.CurrentStage())

	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageQuestionGeneration,
		stages: map[pipeline.Stage]pipeline.StageProgressRecord{
			pipeline.StageQuestionGeneration: {Status: pipeline.StageStatusProcessing, Progress: 50},
		},
	})
	assert.Equal(t, 50, f.session.StageState(pipeline.StageQuestionGeneration).Progress())
	assert.InDelta(t, 80, f.o.OverallProgress(), 0.01)

	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageQuestionGeneration,
		stages: map[pipeline.Stage]pipeline.StageProgressRecord{
			pipeline.StageQuestionGeneration: {Status: pipeline.StageStatusCompleted, Progress: 100},
		},
	})
	assert.Equal(t, pipeline.StageReport, f.session.CurrentStage())
	assert.True(t, f.session.StageState(pipeline.StageQuestionGeneration).Completed())

	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageReport,
		stages: map[pipeline.Stage]pipeline.StageProgressRecord{
			pipeline.StageReport: {Status: pipeline.StageStatusCompleted, Progress: 100},
		},
	})
	assert.Equal(t, pipeline.SessionStatusCompleted, f.session.Status())
	assert.InDelta(t, 100, f.o.OverallProgress(), 0.01)
	assert.Equal(t, CadenceStopped, f.o.poller.Cadence())
}

func TestOrchestratorOverallProgressExample(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 4)

	// 3 completed + 1 analyzing of 4 gives a document stage of about 83%,
	// weighted to about 50% overall with question generation untouched.
	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageDocumentAnalysis,
		docs:          docRecords(3, 1, 0),
	})

	assert.Equal(t, 83, f.session.StageState(pipeline.StageDocumentAnalysis).Progress())
	assert.InDelta(t, 49.8, f.o.OverallProgress(), 0.01)
}

func TestOrchestratorPauseAndResume(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 1)

	done := make(chan struct{})
	f.o.apply(ctx, controlCmd{kind: controlPause, done: done})
	assert.Equal(t, pipeline.SessionStatusPaused, f.session.Status())

	done = make(chan struct{})
	f.o.apply(ctx, controlCmd{kind: controlResume, done: done})
	assert.Equal(t, pipeline.SessionStatusActive, f.session.Status())
}

func TestOrchestratorRestartResetsEverything(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 2)

	// Run into a terminal failure first.
	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageDocumentAnalysis,
		docs:          docRecords(0, 0, 2),
	})
	require.Equal(t, pipeline.SessionStatusFailed, f.session.Status())

	done := make(chan struct{})
	f.o.apply(ctx, controlCmd{kind: controlRestart, done: done})
	res := f.applyNextStart(t, ctx)
	require.NoError(t, res.Err)

	assert.Equal(t, pipeline.SessionStatusActive, f.session.Status())
	assert.Equal(t, pipeline.StageDocumentAnalysis, f.session.CurrentStage())
	assert.False(t, f.session.StageState(pipeline.StageQuestionGeneration).NextTriggered())
	assert.Equal(t, pipeline.StageStatusPending, f.session.StageState(pipeline.StageQuestionGeneration).Status())

	for _, j := range f.o.tracker.Snapshot().Jobs {
		assert.Equal(t, pipeline.DocumentStatusPending, j.Status)
		assert.Zero(t, j.Progress)
	}

	// The trail was cleared and restarted fresh.
	for _, e := range f.o.Activity() {
		assert.NotContains(t, e.Message, "all documents failed")
	}

	f.docWorker.AssertNumberOfCalls(t, "Start", 2)
}

func TestOrchestratorRestartDiscardsStaleStartResults(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 2)

	f.questionWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(5, nil)

	// All documents finish, which launches the question-generation start.
	f.o.apply(ctx, snapshotFetched{
		observedStage: pipeline.StageDocumentAnalysis,
		docs:          docRecords(2, 0, 0),
	})
	require.Eventually(t, func() bool { return len(f.o.commands) > 0 },
		2*time.Second, 5*time.Millisecond)

	// A restart lands before that result is drained. The queued result
	// belongs to the old run and must not flip the fresh session's stages.
	f.o.apply(ctx, controlCmd{kind: controlRestart, done: make(chan struct{})})

	f.applyNextStart(t, ctx)
	f.applyNextStart(t, ctx)

	assert.Equal(t, pipeline.StageDocumentAnalysis, f.session.CurrentStage())
	assert.Equal(t, pipeline.StageStatusPending, f.session.StageState(pipeline.StageQuestionGeneration).Status())
	assert.Equal(t, pipeline.StageStatusProcessing, f.session.StageState(pipeline.StageDocumentAnalysis).Status())
	f.questionWorker.AssertNumberOfCalls(t, "Start", 1)
}

func TestOrchestratorTransientFetchErrorLeavesStateUntouched(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.bootstrap(t, ctx, 2)

	f.store.On("GetStageProgress", mock.Anything, f.session.SessionID()).
		Return(nil, errors.New("connection refused")).Once()

	f.o.fetchSnapshot(ctx)

	// The failure produced no command and changed nothing; the next
	// scheduled tick simply retries.
	assert.Empty(t, f.o.commands)
	assert.Equal(t, pipeline.StageDocumentAnalysis, f.session.CurrentStage())
	assert.Equal(t, pipeline.SessionStatusActive, f.session.Status())

	// A failing document-status query is absorbed the same way.
	f.store.On("GetStageProgress", mock.Anything, f.session.SessionID()).Return(nil, nil).Once()
	f.store.On("GetDocumentStatuses", mock.Anything, f.session.SessionID()).
		Return(nil, errors.New("connection refused")).Once()

	f.o.fetchSnapshot(ctx)
	assert.Empty(t, f.o.commands)

	// Once the store recovers, the next fetch proceeds normally.
	f.store.On("GetStageProgress", mock.Anything, f.session.SessionID()).Return(nil, nil).Once()
	f.store.On("GetDocumentStatuses", mock.Anything, f.session.SessionID()).
		Return(docRecords(1, 1, 0), nil).Once()

	f.o.fetchSnapshot(ctx)
	require.Len(t, f.o.commands, 1)
	f.o.apply(ctx, <-f.o.commands)
	assert.Equal(t, 2, f.o.tracker.Snapshot().TotalCount)
}

func TestOrchestratorPersistenceFailureContinuesOptimistically(t *testing.T) {
	store := new(mockStateStore)
	store.On("UpdateStageProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(context.DeadlineExceeded)
	store.On("UpdateSessionStatus", mock.Anything, mock.Anything, mock.Anything).
		Return(context.DeadlineExceeded)

	f := newOrchestratorFixtureWith(t, store)
	ctx := context.Background()
	f.bootstrap(t, ctx, 2)

	records := docRecords(1, 1, 0)
	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageDocumentAnalysis, docs: records})

	// Writes timing out are warned about, not surfaced; in-memory state
	// stays authoritative.
	assert.Equal(t, 67, f.session.StageState(pipeline.StageDocumentAnalysis).Progress())
	assert.Equal(t, pipeline.SessionStatusActive, f.session.Status())

	// The pipeline keeps advancing despite every write failing.
	f.questionWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(3, nil)
	for id, rec := range records {
		rec.Status = pipeline.DocumentStatusCompleted
		rec.Progress = 100
		records[id] = rec
	}
	f.o.apply(ctx, snapshotFetched{observedStage: pipeline.StageDocumentAnalysis, docs: records})
	res := f.applyNextStart(t, ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, pipeline.StageQuestionGeneration, f.session.CurrentStage())
}

func TestOrchestratorRunAndStop(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.docWorker.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	f.store.On("GetStageProgress", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	f.store.On("GetDocumentStatuses", mock.Anything, mock.Anything).Return(nil, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.o.Run(ctx))
	require.Eventually(t, func() bool {
		stage, _ := f.o.currentStage.Load().(pipeline.Stage)
		return stage == pipeline.StageDocumentAnalysis
	}, 2*time.Second, 10*time.Millisecond)

	f.o.Stop()
}
