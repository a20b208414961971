// Package memory provides an in-memory implementation of the pipeline state
// store. It is suitable for tests and local development where persistence is
// not required, and doubles as a stand-in for the external workers that
// mutate state asynchronously.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/draftforge/propeller/internal/domain/pipeline"
)

var _ pipeline.StateStore = (*StateStore)(nil)

type sessionState struct {
	projectID uuid.UUID
	status    pipeline.SessionStatus
	stages    map[pipeline.Stage]pipeline.StageProgressRecord
	documents map[uuid.UUID]pipeline.DocumentStatusRecord
}

// StateStore keeps pipeline session, stage, and document state in memory.
// All methods are safe for concurrent use.
type StateStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionState
}

// NewStateStore creates an empty in-memory pipeline state store.
func NewStateStore() *StateStore {
	return &StateStore{sessions: make(map[uuid.UUID]*sessionState)}
}

// CreateSession registers a session so subsequent reads and writes succeed.
// It is a no-op if the session already exists.
func (s *StateStore) CreateSession(ctx context.Context, sessionID, projectID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		return nil
	}
	s.sessions[sessionID] = &sessionState{
		projectID: projectID,
		status:    pipeline.SessionStatusActive,
		stages:    make(map[pipeline.Stage]pipeline.StageProgressRecord),
		documents: make(map[uuid.UUID]pipeline.DocumentStatusRecord),
	}
	return nil
}

// GetStageProgress retrieves the per-stage status records for a session.
func (s *StateStore) GetStageProgress(ctx context.Context, sessionID uuid.UUID) (map[pipeline.Stage]pipeline.StageProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, pipeline.ErrSessionNotFound
	}

	records := make(map[pipeline.Stage]pipeline.StageProgressRecord, len(state.stages))
	for stage, rec := range state.stages {
		records[stage] = rec
	}
	return records, nil
}

// GetDocumentStatuses retrieves the per-document status records for a
// session's analysis stage.
func (s *StateStore) GetDocumentStatuses(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]pipeline.DocumentStatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, pipeline.ErrSessionNotFound
	}

	records := make(map[uuid.UUID]pipeline.DocumentStatusRecord, len(state.documents))
	for id, rec := range state.documents {
		records[id] = rec
	}
	return records, nil
}

// UpdateStageProgress persists stage-level progress, creating the stage
// record on first write. The stage status is left untouched on update.
func (s *StateStore) UpdateStageProgress(ctx context.Context, sessionID uuid.UUID, stage pipeline.Stage, percent int, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return pipeline.ErrSessionNotFound
	}

	rec, ok := state.stages[stage]
	if !ok {
		rec = pipeline.StageProgressRecord{Status: pipeline.StageStatusProcessing}
	}
	rec.Progress = percent
	rec.Message = message
	state.stages[stage] = rec
	return nil
}

// UpdateSessionStatus persists the overall session status.
func (s *StateStore) UpdateSessionStatus(ctx context.Context, sessionID uuid.UUID, status pipeline.SessionStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return pipeline.ErrSessionNotFound
	}
	state.status = status
	return nil
}

// SetStageStatus overwrites a stage record wholesale, the way an external
// worker reporting through the persistence layer would.
func (s *StateStore) SetStageStatus(sessionID uuid.UUID, stage pipeline.Stage, rec pipeline.StageProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return pipeline.ErrSessionNotFound
	}
	state.stages[stage] = rec
	return nil
}

// SetDocumentStatus overwrites a document job record wholesale, simulating
// an external analysis worker's write.
func (s *StateStore) SetDocumentStatus(sessionID, documentID uuid.UUID, rec pipeline.DocumentStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return pipeline.ErrSessionNotFound
	}
	state.documents[documentID] = rec
	return nil
}

// SessionStatus reports the persisted status for a session.
func (s *StateStore) SessionStatus(sessionID uuid.UUID) (pipeline.SessionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return "", pipeline.ErrSessionNotFound
	}
	return state.status, nil
}
