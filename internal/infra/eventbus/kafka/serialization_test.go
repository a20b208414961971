package kafka

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/propeller/internal/domain/pipeline"
)

func TestDocumentProgressedRoundTrip(t *testing.T) {
	sessionID, docID := uuid.New(), uuid.New()
	evt := pipeline.NewDocumentProgressedEvent(sessionID, docID, pipeline.DocumentStatusAnalyzing, 45, "")

	wire, err := toWirePayload(evt)
	require.NoError(t, err)

	raw, err := serializeEnvelope(evt.EventType(), evt.OccurredAt(), wire)
	require.NoError(t, err)

	var envelope wireEnvelope
	require.NoError(t, decodeEnvelope(raw, &envelope))
	assert.Equal(t, pipeline.EventTypeDocumentProgressed, envelope.EventType)
	assert.WithinDuration(t, evt.OccurredAt(), envelope.OccurredAt, time.Millisecond)

	payload, err := deserializePayload(envelope.EventType, envelope.Payload)
	require.NoError(t, err)

	got, ok := payload.(pipeline.DocumentProgressedEvent)
	require.True(t, ok)
	assert.Equal(t, sessionID, got.SessionID)
	assert.Equal(t, docID, got.DocumentID)
	assert.Equal(t, pipeline.DocumentStatusAnalyzing, got.Status)
	assert.Equal(t, 45, got.Progress)
}

func TestStageTriggeredRoundTrip(t *testing.T) {
	sessionID := uuid.New()
	evt := pipeline.NewStageTriggeredEvent(sessionID,
		pipeline.StageDocumentAnalysis, pipeline.StageQuestionGeneration)

	wire, err := toWirePayload(evt)
	require.NoError(t, err)
	raw, err := serializeEnvelope(evt.EventType(), evt.OccurredAt(), wire)
	require.NoError(t, err)

	var envelope wireEnvelope
	require.NoError(t, decodeEnvelope(raw, &envelope))

	payload, err := deserializePayload(envelope.EventType, envelope.Payload)
	require.NoError(t, err)

	got, ok := payload.(pipeline.StageTriggeredEvent)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageDocumentAnalysis, got.FromStage)
	assert.Equal(t, pipeline.StageQuestionGeneration, got.ToStage)
}

func TestDeserializeUnknownTypeFails(t *testing.T) {
	_, err := deserializePayload("Bogus", []byte(`{}`))
	require.Error(t, err)
}
