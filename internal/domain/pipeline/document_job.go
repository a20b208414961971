package pipeline

import (
	"errors"

	"github.com/google/uuid"
)

// ErrStatusRegression is returned when an update would move a document job
// backwards through its lifecycle.
var ErrStatusRegression = errors.New("document job status regression")

// DocumentJob tracks the analysis of a single input document within the
// document-analysis stage.
type DocumentJob struct {
	id       uuid.UUID
	name     string
	status   DocumentStatus
	progress int
	errMsg   string
	timeline *Timeline
}

// JobUpdate carries a partial status/progress update for one document job.
// An empty Status means "unchanged"; a negative Progress means "unchanged".
type JobUpdate struct {
	Status   DocumentStatus
	Progress int
	Error    string
}

// NewDocumentJob creates a DocumentJob in its initial pending state.
func NewDocumentJob(id uuid.UUID, name string, timeProvider TimeProvider) *DocumentJob {
	return &DocumentJob{
		id:       id,
		name:     name,
		status:   DocumentStatusPending,
		timeline: NewTimeline(timeProvider),
	}
}

// ReconstructDocumentJob creates a DocumentJob from stored fields, bypassing
// creation invariants. This should only be used by repositories when loading
// from the DB.
func ReconstructDocumentJob(
	id uuid.UUID,
	name string,
	status DocumentStatus,
	progress int,
	errMsg string,
	timeline *Timeline,
) *DocumentJob {
	return &DocumentJob{
		id:       id,
		name:     name,
		status:   status,
		progress: progress,
		errMsg:   errMsg,
		timeline: timeline,
	}
}

// ID returns the unique identifier for this document job.
func (j *DocumentJob) ID() uuid.UUID { return j.id }

// Name returns the display name of the underlying document.
func (j *DocumentJob) Name() string { return j.name }

// Status returns the current analysis status of the document.
func (j *DocumentJob) Status() DocumentStatus { return j.status }

// Progress returns the analysis progress in [0,100].
func (j *DocumentJob) Progress() int { return j.progress }

// Error returns the error message for a failed document, if any.
func (j *DocumentJob) Error() string { return j.errMsg }

// Timeline provides access to the job's timeline information.
func (j *DocumentJob) Timeline() *Timeline { return j.timeline }

// ApplyUpdate merges a partial update into the job. It reports whether any
// field actually changed so callers can skip redundant downstream
// recomputation. minProgressDelta suppresses sub-threshold progress-only
// changes; status changes and terminal progress always apply.
//
// A terminal job never reverts: updates that would regress the status
// return ErrStatusRegression and leave the job untouched.
func (j *DocumentJob) ApplyUpdate(update JobUpdate, minProgressDelta int) (bool, error) {
	changed := false

	if update.Status != "" && update.Status != j.status {
		if j.status.IsTerminal() {
			return false, ErrStatusRegression
		}
		if err := j.status.validateTransition(update.Status); err != nil {
			return false, err
		}
		j.status = update.Status
		changed = true

		if update.Status == DocumentStatusCompleted {
			j.progress = 100
		}
		if update.Status.IsTerminal() {
			j.timeline.MarkCompleted()
		}
	}

	if update.Progress >= 0 && update.Progress > j.progress {
		delta := update.Progress - j.progress
		if changed || delta >= minProgressDelta || update.Progress >= 100 {
			j.progress = min(update.Progress, 100)
			changed = true
		}
	}

	if update.Error != "" && update.Error != j.errMsg {
		j.errMsg = update.Error
		changed = true
	}

	if changed {
		j.timeline.UpdateLastUpdate()
	}
	return changed, nil
}

// Reset returns the job to its initial pending state. Used on restart.
func (j *DocumentJob) Reset() {
	j.status = DocumentStatusPending
	j.progress = 0
	j.errMsg = ""
	j.timeline.MarkStarted()
}
