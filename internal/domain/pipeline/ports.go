package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session does not exist in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrDocumentJobNotFound is returned when a document job does not exist in
// the store.
var ErrDocumentJobNotFound = errors.New("document job not found")

// StageProgressRecord is the persisted per-stage state as reported by the
// state store.
type StageProgressRecord struct {
	Status   StageStatus
	Progress int
	Message  string
}

// DocumentStatusRecord is the persisted per-document state as reported by
// the state store.
type DocumentStatusRecord struct {
	Name     string
	Status   DocumentStatus
	Progress int
	Error    string
}

// StateStore is the narrow interface to the persisted state synchronizer,
// the source of truth that external workers mutate asynchronously. The
// orchestrator only consumes and updates pipeline state through it.
type StateStore interface {
	// GetStageProgress retrieves the per-stage status records for a session.
	GetStageProgress(ctx context.Context, sessionID uuid.UUID) (map[Stage]StageProgressRecord, error)

	// GetDocumentStatuses retrieves the per-document status records for a
	// session's analysis stage.
	GetDocumentStatuses(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]DocumentStatusRecord, error)

	// UpdateStageProgress persists stage-level progress.
	UpdateStageProgress(ctx context.Context, sessionID uuid.UUID, stage Stage, percent int, message string) error

	// UpdateSessionStatus persists the overall session status.
	UpdateSessionStatus(ctx context.Context, sessionID uuid.UUID, status SessionStatus) error
}

// QuestionGenerationOptions configures a question-generation run.
type QuestionGenerationOptions struct {
	MaxQuestions int
	Locale       string
}

// DocumentAnalysisWorker starts asynchronous per-document analysis for a
// session. Subsequent job states are observed only through the StateStore.
type DocumentAnalysisWorker interface {
	// Start begins analysis and returns the total number of documents the
	// worker will process.
	Start(ctx context.Context, sessionID, projectID uuid.UUID) (int, error)
}

// QuestionGenerationWorker starts asynchronous follow-up question
// generation for a session.
type QuestionGenerationWorker interface {
	// Start begins generation and returns the number of questions produced
	// or scheduled.
	Start(ctx context.Context, sessionID uuid.UUID, opts QuestionGenerationOptions) (int, error)
}
