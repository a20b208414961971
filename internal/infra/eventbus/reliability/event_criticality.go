// Package reliability classifies pipeline events by how much delivery
// guarantee they need. The classification decides whether a transport
// failure must surface to the caller or can be absorbed.
package reliability

import (
	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
)

// IsCriticalEvent determines if an event type represents a message whose
// loss would leave consumers with an inconsistent view of the pipeline.
//
// Lifecycle events are critical: each one happens at most once, so a lost
// message is never retransmitted. Per-document progress is not critical;
// every update is superseded by the next one and by the poll snapshot.
func IsCriticalEvent(eventType events.EventType) bool {
	switch eventType {
	case pipeline.EventTypeStageCompleted,
		pipeline.EventTypeStageFailed,
		pipeline.EventTypeStageTriggered,
		pipeline.EventTypeSessionRestarted:
		return true

	case pipeline.EventTypeDocumentProgressed:
		return false

	default:
		return false
	}
}
