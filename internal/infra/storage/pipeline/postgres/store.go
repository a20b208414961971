// Package postgres provides a PostgreSQL-backed implementation of the
// pipeline state store. External analysis workers write their progress here;
// the orchestrator reads it back and persists its own stage-level view.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

var _ pipeline.StateStore = (*stateStore)(nil)

// stateStore persists pipeline session, stage, and document state in
// PostgreSQL.
type stateStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewStateStore creates a PostgreSQL-backed pipeline state store.
func NewStateStore(pool *pgxpool.Pool, tracer trace.Tracer) *stateStore {
	return &stateStore{pool: pool, tracer: tracer}
}

// CreateSession inserts a new session row in the ACTIVE state at the setup
// stage. It is a no-op if the session already exists.
func (s *stateStore) CreateSession(ctx context.Context, sessionID, projectID uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
		attribute.String("project_id", projectID.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_session", dbAttrs, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO pipeline_sessions (id, project_id, status, current_stage)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			sessionID, projectID, pipeline.SessionStatusActive.String(), pipeline.StageSetup.String(),
		)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		return nil
	})
}

// GetStageProgress retrieves the per-stage status records for a session.
func (s *stateStore) GetStageProgress(ctx context.Context, sessionID uuid.UUID) (map[pipeline.Stage]pipeline.StageProgressRecord, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	records := make(map[pipeline.Stage]pipeline.StageProgressRecord)
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_stage_progress", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT stage, status, progress, message
			FROM stage_progress
			WHERE session_id = $1`,
			sessionID,
		)
		if err != nil {
			return fmt.Errorf("querying stage progress: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var stage, status, message string
			var progress int
			if err := rows.Scan(&stage, &status, &progress, &message); err != nil {
				return fmt.Errorf("scanning stage progress row: %w", err)
			}
			records[pipeline.ParseStage(stage)] = pipeline.StageProgressRecord{
				Status:   pipeline.StageStatus(status),
				Progress: progress,
				Message:  message,
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetDocumentStatuses retrieves the per-document status records for a
// session's analysis stage.
func (s *stateStore) GetDocumentStatuses(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]pipeline.DocumentStatusRecord, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	records := make(map[uuid.UUID]pipeline.DocumentStatusRecord)
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_document_statuses", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, name, status, progress, COALESCE(error, '')
			FROM document_jobs
			WHERE session_id = $1
			ORDER BY created_at`,
			sessionID,
		)
		if err != nil {
			return fmt.Errorf("querying document jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			var name, status, jobErr string
			var progress int
			if err := rows.Scan(&id, &name, &status, &progress, &jobErr); err != nil {
				return fmt.Errorf("scanning document job row: %w", err)
			}
			records[id] = pipeline.DocumentStatusRecord{
				Name:     name,
				Status:   pipeline.DocumentStatus(status),
				Progress: progress,
				Error:    jobErr,
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateStageProgress persists stage-level progress. The row is created on
// first write; the stage status column is owned by whichever worker drives
// the stage and is left untouched on update.
func (s *stateStore) UpdateStageProgress(ctx context.Context, sessionID uuid.UUID, stage pipeline.Stage, percent int, message string) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
		attribute.String("stage", stage.String()),
		attribute.Int("progress", percent),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_stage_progress", dbAttrs, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO stage_progress (session_id, stage, status, progress, message, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (session_id, stage) DO UPDATE
			SET progress = EXCLUDED.progress,
			    message = EXCLUDED.message,
			    updated_at = NOW()`,
			sessionID, stage.String(), pipeline.StageStatusProcessing.String(), percent, message,
		)
		if err != nil {
			return fmt.Errorf("updating stage progress: %w", err)
		}
		return nil
	})
}

// UpdateSessionStatus persists the overall session status.
func (s *stateStore) UpdateSessionStatus(ctx context.Context, sessionID uuid.UUID, status pipeline.SessionStatus) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
		attribute.String("status", status.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_session_status", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE pipeline_sessions
			SET status = $2, updated_at = NOW()
			WHERE id = $1`,
			sessionID, status.String(),
		)
		if err != nil {
			return fmt.Errorf("updating session status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return pipeline.ErrSessionNotFound
		}
		return nil
	})
}

// GetSession loads the persisted session row.
func (s *stateStore) GetSession(ctx context.Context, sessionID uuid.UUID) (projectID uuid.UUID, status pipeline.SessionStatus, currentStage pipeline.Stage, err error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	err = storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_session", dbAttrs, func(ctx context.Context) error {
		var rawStatus, rawStage string
		row := s.pool.QueryRow(ctx, `
			SELECT project_id, status, current_stage
			FROM pipeline_sessions
			WHERE id = $1`,
			sessionID,
		)
		if scanErr := row.Scan(&projectID, &rawStatus, &rawStage); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return pipeline.ErrSessionNotFound
			}
			return fmt.Errorf("scanning session row: %w", scanErr)
		}
		status = pipeline.SessionStatus(rawStatus)
		currentStage = pipeline.ParseStage(rawStage)
		return nil
	})
	return projectID, status, currentStage, err
}
