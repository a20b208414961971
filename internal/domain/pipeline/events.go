package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/propeller/internal/domain/events"
)

// Event types relevant to the pipeline:
const (
	EventTypeDocumentProgressed events.EventType = "DocumentProgressed"
	EventTypeStageCompleted     events.EventType = "StageCompleted"
	EventTypeStageFailed        events.EventType = "StageFailed"
	EventTypeStageTriggered     events.EventType = "StageTriggered"
	EventTypeSessionRestarted   events.EventType = "SessionRestarted"
)

// DocumentProgressedEvent is pushed by an external worker when a document
// job's status or progress changes. It feeds the same update path as poll
// fetches.
type DocumentProgressedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	DocumentID uuid.UUID
	Status     DocumentStatus
	Progress   int
	Error      string
}

// NewDocumentProgressedEvent creates a new document progressed event.
func NewDocumentProgressedEvent(
	sessionID, documentID uuid.UUID,
	status DocumentStatus,
	progress int,
	errMsg string,
) DocumentProgressedEvent {
	return DocumentProgressedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		DocumentID: documentID,
		Status:     status,
		Progress:   progress,
		Error:      errMsg,
	}
}

func (e DocumentProgressedEvent) EventType() events.EventType { return EventTypeDocumentProgressed }
func (e DocumentProgressedEvent) OccurredAt() time.Time       { return e.occurredAt }

// StageCompletedEvent signals that a stage's completion flag was set. It is
// emitted at most once per stage per session run.
type StageCompletedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Stage      Stage
}

// NewStageCompletedEvent creates a new stage completed event.
func NewStageCompletedEvent(sessionID uuid.UUID, stage Stage) StageCompletedEvent {
	return StageCompletedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		Stage:      stage,
	}
}

func (e StageCompletedEvent) EventType() events.EventType { return EventTypeStageCompleted }
func (e StageCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// StageFailedEvent signals that a stage reached its terminal failed state.
type StageFailedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Stage      Stage
	Reason     string
}

// NewStageFailedEvent creates a new stage failed event.
func NewStageFailedEvent(sessionID uuid.UUID, stage Stage, reason string) StageFailedEvent {
	return StageFailedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		Stage:      stage,
		Reason:     reason,
	}
}

func (e StageFailedEvent) EventType() events.EventType { return EventTypeStageFailed }
func (e StageFailedEvent) OccurredAt() time.Time       { return e.occurredAt }

// StageTriggeredEvent signals that the next stage's external worker was
// started. Emitted at most once per stage transition per session run.
type StageTriggeredEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	FromStage  Stage
	ToStage    Stage
}

// NewStageTriggeredEvent creates a new stage triggered event.
func NewStageTriggeredEvent(sessionID uuid.UUID, from, to Stage) StageTriggeredEvent {
	return StageTriggeredEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		FromStage:  from,
		ToStage:    to,
	}
}

func (e StageTriggeredEvent) EventType() events.EventType { return EventTypeStageTriggered }
func (e StageTriggeredEvent) OccurredAt() time.Time       { return e.occurredAt }

// SessionRestartedEvent signals that a session was reset to its initial
// state by an explicit restart.
type SessionRestartedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
}

// NewSessionRestartedEvent creates a new session restarted event.
func NewSessionRestartedEvent(sessionID uuid.UUID) SessionRestartedEvent {
	return SessionRestartedEvent{occurredAt: time.Now(), SessionID: sessionID}
}

func (e SessionRestartedEvent) EventType() events.EventType { return EventTypeSessionRestarted }
func (e SessionRestartedEvent) OccurredAt() time.Time       { return e.occurredAt }
