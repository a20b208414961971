package orchestration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

// Config holds the orchestrator's tunables.
type Config struct {
	// MinProgressDelta suppresses document progress updates smaller than
	// this many points. Render throttling only; completion decisions read
	// status counts, never throttled progress.
	MinProgressDelta int

	// SettleDelay is waited before starting the next stage's worker so
	// final writes from the prior stage land. It never gates flag setting.
	SettleDelay time.Duration

	// StartTimeout bounds the wait for a stage start confirmation.
	StartTimeout time.Duration

	// PersistTimeout bounds each state write; overruns log a warning and
	// the pipeline continues optimistically.
	PersistTimeout time.Duration

	// ActivityCapacity bounds the diagnostic activity trail.
	ActivityCapacity int

	Poller          PollerConfig
	QuestionOptions pipeline.QuestionGenerationOptions
}

// DefaultConfig returns the stock orchestrator tunables.
func DefaultConfig() Config {
	return Config{
		MinProgressDelta: 5,
		SettleDelay:      1500 * time.Millisecond,
		StartTimeout:     15 * time.Second,
		PersistTimeout:   2 * time.Second,
		ActivityCapacity: DefaultActivityCapacity,
		Poller:           DefaultPollerConfig(),
	}
}

// command is one unit of work for the serialized update loop. Poll-tick
// fetches, push notifications, start results and user controls all become
// commands, so every read-modify-write of the session's completion and
// trigger flags happens on a single goroutine.
type command interface{ isCommand() }

type bootstrapCmd struct{}

func (bootstrapCmd) isCommand() {}

// snapshotFetched carries one fetched state snapshot plus the stage that
// was current when the fetch began, so late responses reflecting an older
// stage can be discarded.
type snapshotFetched struct {
	observedStage pipeline.Stage
	stages        map[pipeline.Stage]pipeline.StageProgressRecord
	docs          map[uuid.UUID]pipeline.DocumentStatusRecord
}

func (snapshotFetched) isCommand() {}

type pushUpdate struct {
	evt pipeline.DocumentProgressedEvent
}

func (pushUpdate) isCommand() {}

// startResultCmd carries a worker start outcome back to the loop, tagged
// with the run generation that launched it so results from a run that was
// restarted away are discarded.
type startResultCmd struct {
	gen uint64
	res StartResult
}

func (startResultCmd) isCommand() {}

type controlKind int

const (
	controlPause controlKind = iota
	controlResume
	controlRestart
)

type controlCmd struct {
	kind controlKind
	done chan struct{}
}

func (controlCmd) isCommand() {}

// Orchestrator drives one proposal pipeline run: it owns the session
// aggregate, funnels every stimulus through one serialized update loop,
// adapts the poll cadence to the pipeline's phase, and triggers each stage
// transition exactly once.
type Orchestrator struct {
	cfg Config

	session     *pipeline.Session
	tracker     *JobTracker
	aggregator  *ProgressAggregator
	detector    *CompletionDetector
	coordinator *StageTransitionCoordinator
	poller      *AdaptivePoller
	activity    *ActivityLog

	store     pipeline.StateStore
	publisher events.DomainEventPublisher
	metrics   *OrchestrationMetrics

	commands chan command

	// stageChangeFns is fixed after Run starts; register via OnStageChange
	// beforehand.
	stageChangeFns []func(pipeline.Stage)

	// currentStage mirrors the session's stage for goroutines outside the
	// update loop (fetches tag snapshots with it).
	currentStage atomic.Value

	// docFetchDone flips once document analysis is complete and the next
	// stage triggered; later fetches skip the per-document status query.
	docFetchDone atomic.Bool

	// overallBits holds the latest overall percentage as float64 bits for
	// lock-free reads.
	overallBits atomic.Uint64

	// lastPersisted avoids rewriting unchanged stage progress.
	lastPersisted int

	// gen counts restarts. Worker starts are tagged with the generation
	// that launched them; loop-owned.
	gen uint64

	// runCtx scopes one run's async work; restarting cancels it so the
	// dead run's worker calls are released promptly. Loop-owned.
	runCtx    context.Context
	runCancel context.CancelFunc

	timeProvider pipeline.TimeProvider
	logger       *logger.Logger
	tracer       trace.Tracer

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewOrchestrator wires an orchestrator for one session. Collaborators are
// the persisted state store, the two external workers and an event
// publisher; everything else is built internally.
func NewOrchestrator(
	cfg Config,
	session *pipeline.Session,
	store pipeline.StateStore,
	docWorker pipeline.DocumentAnalysisWorker,
	questionWorker pipeline.QuestionGenerationWorker,
	publisher events.DomainEventPublisher,
	metrics *OrchestrationMetrics,
	timeProvider pipeline.TimeProvider,
	log *logger.Logger,
	tracer trace.Tracer,
) *Orchestrator {
	o := &Orchestrator{
		cfg:          cfg,
		session:      session,
		tracker:      NewJobTracker(cfg.MinProgressDelta, timeProvider, log),
		aggregator:   NewProgressAggregator(),
		detector:     NewCompletionDetector(log, tracer),
		activity:     NewActivityLog(cfg.ActivityCapacity, timeProvider),
		store:        store,
		publisher:    publisher,
		metrics:      metrics,
		commands:     make(chan command, 64),
		timeProvider: timeProvider,
		logger:       log.With("component", "orchestrator", "session_id", session.SessionID().String()),
		tracer:       tracer,
		lastPersisted: -1,
	}
	o.coordinator = NewStageTransitionCoordinator(
		docWorker,
		questionWorker,
		cfg.QuestionOptions,
		publisher,
		cfg.SettleDelay,
		cfg.StartTimeout,
		log,
		tracer,
	)
	o.poller = NewAdaptivePoller(cfg.Poller, o.fetchSnapshot, log)
	o.currentStage.Store(session.CurrentStage())
	o.runCtx, o.runCancel = context.WithCancel(context.Background())
	return o
}

// OnStageChange registers fn to run on the update loop whenever the current
// stage advances. Register before Run; fn must not block.
func (o *Orchestrator) OnStageChange(fn func(pipeline.Stage)) {
	o.stageChangeFns = append(o.stageChangeFns, fn)
}

// Run starts the update loop and the poller, then kicks off document
// analysis. It returns immediately; Stop tears everything down.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	// Reparent the first run's scope under the loop context so Stop tears
	// down in-flight worker starts too.
	o.runCancel()
	o.runCtx, o.runCancel = context.WithCancel(runCtx)

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.loop(runCtx)
	}()
	go func() {
		defer o.wg.Done()
		o.poller.Run(runCtx)
	}()

	o.enqueue(runCtx, bootstrapCmd{})
	return nil
}

// Stop cancels the update loop and poller and waits for in-flight work to
// drain.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
		o.wg.Wait()
	})
}

// OverallProgress returns the latest overall pipeline percentage. Safe to
// call from any goroutine.
func (o *Orchestrator) OverallProgress() float64 {
	return math.Float64frombits(o.overallBits.Load())
}

// Activity returns the diagnostic trail, newest first.
func (o *Orchestrator) Activity() []ActivityEntry { return o.activity.Entries() }

// Pause suppresses future poll fetches. An in-flight fetch is not canceled;
// its result still applies. Blocks until the loop has applied the control.
func (o *Orchestrator) Pause(ctx context.Context) { o.control(ctx, controlPause) }

// Resume re-enables poll fetches.
func (o *Orchestrator) Resume(ctx context.Context) { o.control(ctx, controlResume) }

// Restart resets the session, jobs and activity trail to their initial
// state and reruns the pipeline from document analysis. This is the only
// path that clears the completion and trigger flags.
func (o *Orchestrator) Restart(ctx context.Context) { o.control(ctx, controlRestart) }

// HandleDocumentProgress funnels a push notification into the serialized
// update path. Push and poll feed the same reducer, so either source alone
// keeps the pipeline correct.
func (o *Orchestrator) HandleDocumentProgress(ctx context.Context, evt pipeline.DocumentProgressedEvent) error {
	if evt.SessionID != o.session.SessionID() {
		return nil
	}
	o.metrics.IncPushUpdate(ctx)
	o.enqueue(ctx, pushUpdate{evt: evt})
	return nil
}

func (o *Orchestrator) control(ctx context.Context, kind controlKind) {
	done := make(chan struct{})
	o.enqueue(ctx, controlCmd{kind: kind, done: done})
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) enqueue(ctx context.Context, cmd command) {
	select {
	case o.commands <- cmd:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-o.commands:
			o.apply(ctx, cmd)
		}
	}
}

// apply is the single transition function: every stimulus mutates the
// session here and nowhere else. Within one invocation, completion
// detection strictly precedes triggering, and both happen before control
// yields.
func (o *Orchestrator) apply(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case bootstrapCmd:
		o.applyBootstrap(ctx)
	case snapshotFetched:
		o.applySnapshot(ctx, c)
	case pushUpdate:
		o.applyPush(ctx, c)
	case startResultCmd:
		o.applyStartResult(ctx, c)
	case controlCmd:
		o.applyControl(ctx, c)
	}
}

// applyBootstrap moves the session out of setup and starts document
// analysis. Setup has no external worker, so its flags are claimed inline.
func (o *Orchestrator) applyBootstrap(ctx context.Context) {
	if o.session.CurrentStage() != pipeline.StageSetup {
		return
	}

	if err := o.session.MarkStageCompleted(pipeline.StageSetup); err != nil {
		return
	}
	if err := o.session.MarkNextStageTriggered(pipeline.StageSetup); err != nil {
		return
	}
	o.advanceTo(ctx, pipeline.StageDocumentAnalysis)
	o.activity.Append("document analysis started")
	o.launchStart(pipeline.StageSetup, pipeline.StageDocumentAnalysis)
	o.persistSessionStatus(ctx, pipeline.SessionStatusActive)
}

// applySnapshot merges one fetched snapshot. Stale responses reflecting a
// stage the session has already advanced past are discarded.
func (o *Orchestrator) applySnapshot(ctx context.Context, cmd snapshotFetched) {
	current := o.session.CurrentStage()
	if cmd.observedStage != current && cmd.observedStage.Before(current) {
		o.logger.Debug(ctx, "discarding stale snapshot",
			"observed_stage", cmd.observedStage.String(),
			"current_stage", current.String())
		return
	}

	changed := o.tracker.IngestStatuses(ctx, cmd.docs)
	o.applyStageRecords(ctx, cmd.stages)
	o.reduce(ctx, changed)
}

// applyPush merges one push-delivered document update.
func (o *Orchestrator) applyPush(ctx context.Context, cmd pushUpdate) {
	update := pipeline.JobUpdate{
		Status:   cmd.evt.Status,
		Progress: cmd.evt.Progress,
		Error:    cmd.evt.Error,
	}
	changed := o.tracker.Ingest(ctx, cmd.evt.DocumentID, "", update)
	o.reduce(ctx, changed)
}

// applyStageRecords folds persisted stage-level state into the session.
// Question generation and the report run in external workers, so their
// completion is observed here rather than derived from job counts.
func (o *Orchestrator) applyStageRecords(ctx context.Context, records map[pipeline.Stage]pipeline.StageProgressRecord) {
	if rec, ok := records[pipeline.StageQuestionGeneration]; ok {
		st := o.session.StageState(pipeline.StageQuestionGeneration)
		switch {
		case rec.Status == pipeline.StageStatusFailed && !st.Status().IsTerminal():
			o.session.MarkStageFailed(pipeline.StageQuestionGeneration, rec.Message)
			o.activity.Append("question generation failed: " + rec.Message)
			o.publishEvent(ctx, pipeline.NewStageFailedEvent(
				o.session.SessionID(), pipeline.StageQuestionGeneration, rec.Message))
			o.persistSessionStatus(ctx, pipeline.SessionStatusFailed)
		case rec.Status == pipeline.StageStatusCompleted && !st.Completed():
			if err := o.session.MarkStageCompleted(pipeline.StageQuestionGeneration); err == nil {
				// The report artifact is produced by the same worker chain;
				// there is no separate start call to make.
				_ = o.session.MarkNextStageTriggered(pipeline.StageQuestionGeneration)
				o.advanceTo(ctx, pipeline.StageReport)
				o.activity.Append("question generation complete")
				o.publishEvent(ctx, pipeline.NewStageCompletedEvent(
					o.session.SessionID(), pipeline.StageQuestionGeneration))
			}
		default:
			o.session.SetStageProgress(pipeline.StageQuestionGeneration, rec.Progress, rec.Message)
		}
	}

	if rec, ok := records[pipeline.StageReport]; ok {
		st := o.session.StageState(pipeline.StageReport)
		if rec.Status == pipeline.StageStatusCompleted && !st.Completed() {
			if err := o.session.MarkStageCompleted(pipeline.StageReport); err == nil {
				o.session.SetStatus(pipeline.SessionStatusCompleted)
				o.activity.Append("report ready")
				o.publishEvent(ctx, pipeline.NewStageCompletedEvent(
					o.session.SessionID(), pipeline.StageReport))
				o.persistSessionStatus(ctx, pipeline.SessionStatusCompleted)
			}
		}
	}
}

// reduce recomputes aggregates, evaluates completion, persists progress and
// retunes the poll cadence. It runs after every merged update.
func (o *Orchestrator) reduce(ctx context.Context, jobsChanged bool) {
	snap := o.tracker.Snapshot()

	if o.session.CurrentStage() == pipeline.StageDocumentAnalysis {
		if jobsChanged {
			progress := int(math.Round(o.aggregator.DocumentStageProgress(snap)))
			o.session.SetStageProgress(pipeline.StageDocumentAnalysis, progress, "")
		}

		switch o.detector.Evaluate(ctx, o.session, pipeline.StageDocumentAnalysis, snap) {
		case DecisionTriggerNext:
			o.publishEvent(ctx, pipeline.NewStageCompletedEvent(
				o.session.SessionID(), pipeline.StageDocumentAnalysis))
			o.metrics.IncStageTransition(ctx,
				pipeline.StageDocumentAnalysis.String(),
				pipeline.StageQuestionGeneration.String())
			o.advanceTo(ctx, pipeline.StageQuestionGeneration)
			if snap.ErrorCount > 0 {
				o.activity.Append(fmt.Sprintf(
					"document analysis complete (%d of %d failed); generating questions",
					snap.ErrorCount, snap.TotalCount))
			} else {
				o.activity.Append("document analysis complete; generating questions")
			}
			o.launchStart(pipeline.StageDocumentAnalysis, pipeline.StageQuestionGeneration)
		case DecisionFailNext:
			o.activity.Append("all documents failed; pipeline halted")
			o.publishEvent(ctx, pipeline.NewStageFailedEvent(
				o.session.SessionID(), pipeline.StageQuestionGeneration, "all documents failed analysis"))
			o.persistStageProgress(ctx, pipeline.StageQuestionGeneration, 0, "all documents failed analysis")
			o.persistSessionStatus(ctx, pipeline.SessionStatusFailed)
		}
	}

	o.persistCurrentProgress(ctx)
	o.refreshOverall()
	o.poller.SetCadence(ctx, o.cadenceFor(snap))
}

// applyStartResult folds the outcome of an asynchronous start call back
// into the session. Results launched by a run that has since been restarted
// carry a stale generation and are dropped; the new run starts its own
// workers.
func (o *Orchestrator) applyStartResult(ctx context.Context, cmd startResultCmd) {
	if cmd.gen != o.gen {
		o.logger.Debug(ctx, "discarding start result from a previous run",
			"stage", cmd.res.To.String())
		return
	}
	res := cmd.res
	if res.Err != nil {
		switch {
		case errors.Is(res.Err, ErrStartTimeout):
			// The worker may still come up; a later poll will observe it.
			o.logger.Warn(ctx, "stage start unconfirmed, awaiting poll",
				"stage", res.To.String())
			o.activity.Append(fmt.Sprintf("%s start unconfirmed; still watching", res.To))
		case errors.Is(res.Err, context.Canceled):
			// Shutdown; nothing to record.
		default:
			o.session.MarkStageFailed(res.To, res.Err.Error())
			o.activity.Append(fmt.Sprintf("%s failed to start: %s", res.To, res.Err))
			o.publishEvent(ctx, pipeline.NewStageFailedEvent(o.session.SessionID(), res.To, res.Err.Error()))
			o.persistStageProgress(ctx, res.To, 0, res.Err.Error())
			o.persistSessionStatus(ctx, pipeline.SessionStatusFailed)
			o.poller.SetCadence(ctx, CadenceStopped)
		}
		return
	}

	if err := o.session.StartStage(res.To); err != nil {
		o.logger.Warn(ctx, "started stage not in startable state",
			"stage", res.To.String(), "error", err.Error())
	}
	switch res.To {
	case pipeline.StageDocumentAnalysis:
		o.activity.Append(fmt.Sprintf("analyzing %d documents", res.Count))
	case pipeline.StageQuestionGeneration:
		o.activity.Append(fmt.Sprintf("generating questions (%d queued)", res.Count))
	}
	o.logger.Info(ctx, "stage worker started",
		"stage", res.To.String(), "count", res.Count)
}

func (o *Orchestrator) applyControl(ctx context.Context, cmd controlCmd) {
	defer close(cmd.done)

	switch cmd.kind {
	case controlPause:
		o.poller.Pause()
		o.session.SetStatus(pipeline.SessionStatusPaused)
		o.activity.Append("pipeline paused")
		o.persistSessionStatus(ctx, pipeline.SessionStatusPaused)
	case controlResume:
		o.poller.Resume()
		o.session.SetStatus(pipeline.SessionStatusActive)
		o.activity.Append("pipeline resumed")
		o.persistSessionStatus(ctx, pipeline.SessionStatusActive)
	case controlRestart:
		o.applyRestart(ctx)
	}
}

// applyRestart returns every entity to its initial state and reruns the
// pipeline from the beginning.
func (o *Orchestrator) applyRestart(ctx context.Context) {
	// Cut off the previous run first: cancel its worker starts and bump the
	// generation so any result already queued is ignored on arrival.
	o.runCancel()
	o.gen++
	o.runCtx, o.runCancel = context.WithCancel(ctx)

	o.session.Restart()
	o.tracker.Reset()
	o.activity.Clear()
	o.currentStage.Store(o.session.CurrentStage())
	o.docFetchDone.Store(false)
	o.overallBits.Store(0)
	o.lastPersisted = -1

	o.poller.Resume()
	o.poller.SetCadence(ctx, CadenceNormal)

	o.publishEvent(ctx, pipeline.NewSessionRestartedEvent(o.session.SessionID()))
	o.logger.Info(ctx, "pipeline restarted")
	o.activity.Append("pipeline restarted")

	o.applyBootstrap(ctx)
}

// launchStart runs the coordinator's start call off-loop and feeds the
// result back as a command. The trigger flag is already set by the time
// this is called. The goroutine runs under the launching run's scope, so a
// restart both cancels the call and invalidates its result.
func (o *Orchestrator) launchStart(from, to pipeline.Stage) {
	gen, runCtx := o.gen, o.runCtx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		res := o.coordinator.Start(runCtx, o.session.SessionID(), o.session.ProjectID(), from, to)
		o.enqueue(runCtx, startResultCmd{gen: gen, res: res})
	}()
}

// fetchSnapshot is the poller's fetch callback. It runs outside the update
// loop; results are funneled back as commands. Fetch errors are transient:
// logged, counted and retried on the next scheduled tick.
func (o *Orchestrator) fetchSnapshot(ctx context.Context) {
	observed, _ := o.currentStage.Load().(pipeline.Stage)

	ctx, span := o.tracer.Start(ctx, "orchestrator.pipeline.fetch_snapshot",
		trace.WithAttributes(
			attribute.String("session_id", o.session.SessionID().String()),
			attribute.String("observed_stage", observed.String()),
		))
	defer span.End()

	o.metrics.IncFetch(ctx)
	start := o.timeProvider.Now()

	stages, err := o.store.GetStageProgress(ctx, o.session.SessionID())
	if err != nil {
		o.metrics.IncFetchFailure(ctx)
		span.RecordError(err)
		o.logger.Warn(ctx, "snapshot fetch failed; retrying on next tick", "error", err.Error())
		return
	}

	var docs map[uuid.UUID]pipeline.DocumentStatusRecord
	if !o.docFetchDone.Load() {
		docs, err = o.store.GetDocumentStatuses(ctx, o.session.SessionID())
		if err != nil {
			o.metrics.IncFetchFailure(ctx)
			span.RecordError(err)
			o.logger.Warn(ctx, "document status fetch failed; retrying on next tick", "error", err.Error())
			return
		}
	}

	o.metrics.ObserveFetchDuration(ctx, o.timeProvider.Now().Sub(start))
	o.enqueue(ctx, snapshotFetched{observedStage: observed, stages: stages, docs: docs})
}

// advanceTo moves the session forward and fans out stage-change
// notifications.
func (o *Orchestrator) advanceTo(ctx context.Context, stage pipeline.Stage) {
	if err := o.session.AdvanceTo(stage); err != nil {
		o.logger.Error(ctx, "stage advance rejected",
			"to_stage", stage.String(), "error", err.Error())
		return
	}
	o.currentStage.Store(stage)

	doc := o.session.StageState(pipeline.StageDocumentAnalysis)
	o.docFetchDone.Store(doc.Completed() && doc.NextTriggered())

	for _, fn := range o.stageChangeFns {
		fn(stage)
	}
}

// cadenceFor maps the pipeline's phase to a poll cadence.
func (o *Orchestrator) cadenceFor(snap pipeline.JobSnapshot) PollCadence {
	doc := o.session.StageState(pipeline.StageDocumentAnalysis)
	question := o.session.StageState(pipeline.StageQuestionGeneration)

	switch {
	case o.session.Status() == pipeline.SessionStatusCompleted,
		o.session.Status() == pipeline.SessionStatusFailed:
		return CadenceStopped
	case doc.Completed() && question.Completed():
		return CadenceStopped
	case snap.AnyAnalyzing():
		return CadenceFast
	case doc.Completed() && question.Status() == pipeline.StageStatusPending:
		return CadenceSettling
	case snap.AllProcessed():
		return CadenceSlow
	default:
		return CadenceNormal
	}
}

func (o *Orchestrator) refreshOverall() {
	o.overallBits.Store(math.Float64bits(o.aggregator.Overall(o.session)))
}

// persistCurrentProgress writes the document stage's progress when it moved
// since the last write.
func (o *Orchestrator) persistCurrentProgress(ctx context.Context) {
	progress := o.session.StageState(pipeline.StageDocumentAnalysis).Progress()
	if progress == o.lastPersisted {
		return
	}
	o.persistStageProgress(ctx, pipeline.StageDocumentAnalysis, progress, "")
	o.lastPersisted = progress
}

// persistStageProgress writes stage progress with a bounded wait. An
// overrun or failure logs a warning and the pipeline continues
// optimistically; the store is reconciled on a later cycle.
func (o *Orchestrator) persistStageProgress(ctx context.Context, stage pipeline.Stage, percent int, message string) {
	writeCtx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
	defer cancel()

	if err := o.store.UpdateStageProgress(writeCtx, o.session.SessionID(), stage, percent, message); err != nil {
		o.logger.Warn(ctx, "stage progress write not confirmed; continuing",
			"stage", stage.String(), "error", err.Error())
	}
}

func (o *Orchestrator) persistSessionStatus(ctx context.Context, status pipeline.SessionStatus) {
	writeCtx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
	defer cancel()

	if err := o.store.UpdateSessionStatus(writeCtx, o.session.SessionID(), status); err != nil {
		o.logger.Warn(ctx, "session status write not confirmed; continuing",
			"status", status.String(), "error", err.Error())
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, evt events.DomainEvent) {
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(o.session.SessionID().String())); err != nil {
		o.logger.Warn(ctx, "failed to publish domain event",
			"event_type", string(evt.EventType()), "error", err.Error())
	}
}
