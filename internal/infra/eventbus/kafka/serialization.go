package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
)

// wireEnvelope is the JSON frame every message on the wire shares. The
// payload stays raw until the event type selects a concrete shape.
type wireEnvelope struct {
	EventType  events.EventType `json:"event_type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Payload    json.RawMessage  `json:"payload"`
}

func serializeEnvelope(evtType events.EventType, occurredAt time.Time, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload for %s: %w", evtType, err)
	}
	return json.Marshal(wireEnvelope{EventType: evtType, OccurredAt: occurredAt, Payload: raw})
}

func decodeEnvelope(raw []byte, out *wireEnvelope) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshaling wire envelope: %w", err)
	}
	return nil
}

type documentProgressedDTO struct {
	SessionID  uuid.UUID `json:"session_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
}

type stageCompletedDTO struct {
	SessionID uuid.UUID `json:"session_id"`
	Stage     string    `json:"stage"`
}

type stageFailedDTO struct {
	SessionID uuid.UUID `json:"session_id"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
}

type stageTriggeredDTO struct {
	SessionID uuid.UUID `json:"session_id"`
	FromStage string    `json:"from_stage"`
	ToStage   string    `json:"to_stage"`
}

type sessionRestartedDTO struct {
	SessionID uuid.UUID `json:"session_id"`
}

// toWirePayload converts a domain event into its wire shape.
func toWirePayload(event events.DomainEvent) (any, error) {
	switch e := event.(type) {
	case pipeline.DocumentProgressedEvent:
		return documentProgressedDTO{
			SessionID:  e.SessionID,
			DocumentID: e.DocumentID,
			Status:     e.Status.String(),
			Progress:   e.Progress,
			Error:      e.Error,
		}, nil
	case pipeline.StageCompletedEvent:
		return stageCompletedDTO{SessionID: e.SessionID, Stage: e.Stage.String()}, nil
	case pipeline.StageFailedEvent:
		return stageFailedDTO{SessionID: e.SessionID, Stage: e.Stage.String(), Reason: e.Reason}, nil
	case pipeline.StageTriggeredEvent:
		return stageTriggeredDTO{SessionID: e.SessionID, FromStage: e.FromStage.String(), ToStage: e.ToStage.String()}, nil
	case pipeline.SessionRestartedEvent:
		return sessionRestartedDTO{SessionID: e.SessionID}, nil
	default:
		return nil, fmt.Errorf("no wire shape for event type %s", event.EventType())
	}
}

// deserializePayload decodes a raw payload into its domain event.
func deserializePayload(evtType events.EventType, raw json.RawMessage) (any, error) {
	switch evtType {
	case pipeline.EventTypeDocumentProgressed:
		var dto documentProgressedDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", evtType, err)
		}
		return pipeline.NewDocumentProgressedEvent(
			dto.SessionID, dto.DocumentID,
			pipeline.DocumentStatus(dto.Status), dto.Progress, dto.Error), nil
	case pipeline.EventTypeStageCompleted:
		var dto stageCompletedDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", evtType, err)
		}
		return pipeline.NewStageCompletedEvent(dto.SessionID, pipeline.Stage(dto.Stage)), nil
	case pipeline.EventTypeStageFailed:
		var dto stageFailedDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", evtType, err)
		}
		return pipeline.NewStageFailedEvent(dto.SessionID, pipeline.Stage(dto.Stage), dto.Reason), nil
	case pipeline.EventTypeStageTriggered:
		var dto stageTriggeredDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", evtType, err)
		}
		return pipeline.NewStageTriggeredEvent(dto.SessionID, pipeline.Stage(dto.FromStage), pipeline.Stage(dto.ToStage)), nil
	case pipeline.EventTypeSessionRestarted:
		var dto sessionRestartedDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", evtType, err)
		}
		return pipeline.NewSessionRestartedEvent(dto.SessionID), nil
	default:
		return nil, fmt.Errorf("unknown event type %s", evtType)
	}
}
