package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SessionStatus represents the overall state of a pipeline session.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is being orchestrated.
	SessionStatusActive SessionStatus = "ACTIVE"

	// SessionStatusPaused indicates polling has been suspended by the user.
	SessionStatusPaused SessionStatus = "PAUSED"

	// SessionStatusCompleted indicates the report stage has finished.
	SessionStatusCompleted SessionStatus = "COMPLETED"

	// SessionStatusFailed indicates a stage failed and the session cannot
	// advance without a restart.
	SessionStatusFailed SessionStatus = "FAILED"
)

// String returns the string representation of the SessionStatus.
func (s SessionStatus) String() string { return string(s) }

// ErrStageAlreadyCompleted is returned when a stage's completion flag is
// already set.
var ErrStageAlreadyCompleted = errors.New("stage already completed")

// ErrNextStageAlreadyTriggered is returned when a stage's trigger flag is
// already set.
var ErrNextStageAlreadyTriggered = errors.New("next stage already triggered")

// StageState holds the per-stage execution state within a session, including
// the two monotone one-shot flags that guard the stage transition.
type StageState struct {
	status   StageStatus
	progress int
	message  string

	// stageCompleted and nextStageTriggered are one-shot per session run.
	// They are set at most once and only reset by an explicit restart.
	stageCompleted     bool
	nextStageTriggered bool
}

// Status returns the stage's execution status.
func (s StageState) Status() StageStatus { return s.status }

// Progress returns the stage's progress in [0,100].
func (s StageState) Progress() int { return s.progress }

// Message returns the most recent stage-level message, typically a failure
// reason.
func (s StageState) Message() string { return s.message }

// Completed reports whether the stage's completion flag has been set.
func (s StageState) Completed() bool { return s.stageCompleted }

// NextTriggered reports whether the next stage's worker has been triggered
// from this stage.
func (s StageState) NextTriggered() bool { return s.nextStageTriggered }

// Session is the aggregate for one orchestration run of the proposal
// pipeline. It owns the current stage, per-stage state and the one-shot
// transition flags. All mutation goes through the orchestrator's single
// serialized update path, so the aggregate itself carries no locking.
type Session struct {
	sessionID uuid.UUID
	projectID uuid.UUID

	currentStage Stage
	status       SessionStatus
	stages       map[Stage]*StageState

	timeline     *Timeline
	timeProvider TimeProvider
}

// NewSession creates a Session in its initial setup state.
func NewSession(sessionID, projectID uuid.UUID, timeProvider TimeProvider) *Session {
	s := &Session{
		sessionID:    sessionID,
		projectID:    projectID,
		currentStage: StageSetup,
		status:       SessionStatusActive,
		timeProvider: timeProvider,
		timeline:     NewTimeline(timeProvider),
	}
	s.initStages()
	return s
}

func (s *Session) initStages() {
	s.stages = make(map[Stage]*StageState, len(stageOrder))
	for _, stage := range stageOrder {
		s.stages[stage] = &StageState{status: StageStatusPending}
	}
}

// SessionID returns the unique identifier for this orchestration run.
func (s *Session) SessionID() uuid.UUID { return s.sessionID }

// ProjectID returns the project this session drafts a proposal for.
func (s *Session) ProjectID() uuid.UUID { return s.projectID }

// CurrentStage returns the stage the pipeline is currently in.
func (s *Session) CurrentStage() Stage { return s.currentStage }

// Status returns the overall session status.
func (s *Session) Status() SessionStatus { return s.status }

// Timeline provides access to the session's timeline information.
func (s *Session) Timeline() *Timeline { return s.timeline }

// StageState returns a copy of the state for the given stage.
func (s *Session) StageState(stage Stage) StageState {
	if st, ok := s.stages[stage]; ok {
		return *st
	}
	return StageState{}
}

// SetStatus updates the overall session status.
func (s *Session) SetStatus(status SessionStatus) {
	s.status = status
	s.timeline.UpdateLastUpdate()
}

// AdvanceTo moves the session to a later stage. The current stage only ever
// moves forward; regressions are rejected.
func (s *Session) AdvanceTo(stage Stage) error {
	if err := s.currentStage.ValidateAdvance(stage); err != nil {
		return err
	}
	s.currentStage = stage
	s.timeline.UpdateLastUpdate()
	return nil
}

// StartStage transitions the given stage to processing.
func (s *Session) StartStage(stage Stage) error {
	st, ok := s.stages[stage]
	if !ok {
		return fmt.Errorf("unknown stage %s", stage)
	}
	if err := st.status.validateTransition(StageStatusProcessing); err != nil {
		return err
	}
	st.status = StageStatusProcessing
	s.timeline.UpdateLastUpdate()
	return nil
}

// SetStageProgress records stage-level progress, clamped to [0,100].
// Progress never decreases within a run.
func (s *Session) SetStageProgress(stage Stage, progress int, message string) {
	st, ok := s.stages[stage]
	if !ok {
		return
	}
	if progress > 100 {
		progress = 100
	}
	if progress > st.progress {
		st.progress = progress
	}
	if message != "" {
		st.message = message
	}
	s.timeline.UpdateLastUpdate()
}

// MarkStageCompleted sets the stage's completion flag and status. It is the
// one-shot half of the completion check: the first caller wins and receives
// nil; every later caller observes ErrStageAlreadyCompleted and must take no
// action. The flag is only cleared by Restart.
func (s *Session) MarkStageCompleted(stage Stage) error {
	st, ok := s.stages[stage]
	if !ok {
		return fmt.Errorf("unknown stage %s", stage)
	}
	if st.stageCompleted {
		return ErrStageAlreadyCompleted
	}
	if !st.status.IsTerminal() {
		// A stage can complete before its start confirmation was observed;
		// pass through processing so the transition stays valid.
		if st.status == StageStatusPending {
			st.status = StageStatusProcessing
		}
		if err := st.status.validateTransition(StageStatusCompleted); err != nil {
			return err
		}
		st.status = StageStatusCompleted
	}
	st.stageCompleted = true
	st.progress = 100
	s.timeline.UpdateLastUpdate()
	return nil
}

// MarkNextStageTriggered sets the stage's trigger flag. Like
// MarkStageCompleted it is one-shot per run: a second call returns
// ErrNextStageAlreadyTriggered. Callers must set this flag synchronously,
// before any asynchronous start call, to close the duplicate-trigger window.
func (s *Session) MarkNextStageTriggered(stage Stage) error {
	st, ok := s.stages[stage]
	if !ok {
		return fmt.Errorf("unknown stage %s", stage)
	}
	if st.nextStageTriggered {
		return ErrNextStageAlreadyTriggered
	}
	st.nextStageTriggered = true
	s.timeline.UpdateLastUpdate()
	return nil
}

// MarkStageFailed puts the stage in its terminal failed state with a
// message. Failing an already-terminal stage is a no-op.
func (s *Session) MarkStageFailed(stage Stage, message string) {
	st, ok := s.stages[stage]
	if !ok || st.status.IsTerminal() {
		return
	}
	st.status = StageStatusFailed
	st.message = message
	s.status = SessionStatusFailed
	s.timeline.UpdateLastUpdate()
}

// Restart returns the session to its initial state: every stage pending,
// progress zeroed, both one-shot flags cleared, current stage back to setup.
// This is the only path that clears stageCompleted and nextStageTriggered.
func (s *Session) Restart() {
	s.currentStage = StageSetup
	s.status = SessionStatusActive
	s.initStages()
	s.timeline.MarkStarted()
}
