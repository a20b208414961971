package orchestration

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

// JobTracker holds the per-document job records for the analysis stage and
// merges incoming partial updates. An update applies only when it actually
// changes something: a status change, or a progress move of at least the
// configured delta. A terminal job never reverts; regressive updates are
// dropped.
//
// The tracker is not safe for concurrent use. All access goes through the
// orchestrator's serialized update path.
type JobTracker struct {
	minProgressDelta int
	timeProvider     pipeline.TimeProvider
	logger           *logger.Logger

	jobs map[uuid.UUID]*pipeline.DocumentJob

	// order preserves first-seen order so snapshots are stable.
	order []uuid.UUID
}

// NewJobTracker creates a JobTracker. minProgressDelta suppresses
// progress-only updates smaller than the given number of points; zero
// disables the throttle.
func NewJobTracker(minProgressDelta int, timeProvider pipeline.TimeProvider, log *logger.Logger) *JobTracker {
	return &JobTracker{
		minProgressDelta: minProgressDelta,
		timeProvider:     timeProvider,
		logger:           log,
		jobs:             make(map[uuid.UUID]*pipeline.DocumentJob),
	}
}

// Ingest merges one partial update for a single document, creating the job
// record on first sight. It reports whether any tracked field changed so the
// caller can skip redundant downstream recomputation.
func (t *JobTracker) Ingest(ctx context.Context, docID uuid.UUID, name string, update pipeline.JobUpdate) bool {
	job, ok := t.jobs[docID]
	if !ok {
		job = pipeline.NewDocumentJob(docID, name, t.timeProvider)
		t.jobs[docID] = job
		t.order = append(t.order, docID)
	}

	changed, err := job.ApplyUpdate(update, t.minProgressDelta)
	if err != nil {
		if errors.Is(err, pipeline.ErrStatusRegression) {
			t.logger.Debug(ctx, "dropping regressive document update",
				"document_id", docID.String(),
				"current_status", job.Status().String(),
				"update_status", update.Status.String())
			return !ok
		}
		t.logger.Warn(ctx, "dropping invalid document update",
			"document_id", docID.String(),
			"error", err.Error())
		return !ok
	}
	return changed || !ok
}

// IngestStatuses merges a full fetched status map, one record per document.
// It reports whether any job changed.
func (t *JobTracker) IngestStatuses(ctx context.Context, records map[uuid.UUID]pipeline.DocumentStatusRecord) bool {
	changed := false
	for docID, rec := range records {
		update := pipeline.JobUpdate{
			Status:   rec.Status,
			Progress: rec.Progress,
			Error:    rec.Error,
		}
		if t.Ingest(ctx, docID, rec.Name, update) {
			changed = true
		}
	}
	return changed
}

// Snapshot returns a point-in-time view of every tracked job with the
// derived counts, in first-seen order.
func (t *JobTracker) Snapshot() pipeline.JobSnapshot {
	views := make([]pipeline.DocumentJobView, 0, len(t.order))
	for _, id := range t.order {
		job := t.jobs[id]
		views = append(views, pipeline.DocumentJobView{
			ID:       job.ID(),
			Name:     job.Name(),
			Status:   job.Status(),
			Progress: job.Progress(),
			Error:    job.Error(),
		})
	}
	return pipeline.NewJobSnapshot(views)
}

// Reset returns every tracked job to its initial pending state. Used on
// restart; the job set itself is kept so the next fetch reconciles it.
func (t *JobTracker) Reset() {
	for _, job := range t.jobs {
		job.Reset()
	}
}
