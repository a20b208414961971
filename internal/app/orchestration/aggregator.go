package orchestration

import (
	"github.com/draftforge/propeller/internal/domain/pipeline"
)

// ProgressAggregator converts tracked job state and per-stage percentages
// into the stage and overall progress numbers consumers see. All outputs
// are clamped to [0,100] and stage progress never regresses for add-only
// update sequences.
type ProgressAggregator struct{}

// NewProgressAggregator creates a ProgressAggregator.
func NewProgressAggregator() *ProgressAggregator { return &ProgressAggregator{} }

// DocumentStageProgress computes the analysis stage's percentage from a job
// snapshot. Completed documents earn full credit, in-flight documents earn
// partial credit, normalized so that all-completed lands exactly on 100.
func (a *ProgressAggregator) DocumentStageProgress(snap pipeline.JobSnapshot) float64 {
	return pipeline.DocumentStageProgress(snap)
}

// Overall computes the weighted pipeline percentage for a session. Document
// analysis carries 60%, question generation 40%. Once the report stage has
// completed, the pipeline is a terminal 100% regardless of the weights.
func (a *ProgressAggregator) Overall(session *pipeline.Session) float64 {
	if session.StageState(pipeline.StageReport).Completed() {
		return 100
	}
	s1 := float64(session.StageState(pipeline.StageDocumentAnalysis).Progress())
	s2 := float64(session.StageState(pipeline.StageQuestionGeneration).Progress())
	return pipeline.OverallProgress(s1, s2)
}
