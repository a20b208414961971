package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/draftforge/propeller/internal/domain/events"
	"github.com/draftforge/propeller/internal/domain/pipeline"
)

func TestIsCriticalEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType events.EventType
		want      bool
	}{
		{"stage completed is critical", pipeline.EventTypeStageCompleted, true},
		{"stage failed is critical", pipeline.EventTypeStageFailed, true},
		{"stage triggered is critical", pipeline.EventTypeStageTriggered, true},
		{"session restarted is critical", pipeline.EventTypeSessionRestarted, true},
		{"document progress is not critical", pipeline.EventTypeDocumentProgressed, false},
		{"unknown types default to non-critical", events.EventType("Bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCriticalEvent(tt.eventType))
		})
	}
}
