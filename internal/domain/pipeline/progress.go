package pipeline

// Stage weights for the overall progress calculation. Document analysis
// carries 60% of the pipeline, question generation the remaining 40%. The
// report stage sits outside the weighted formula as a terminal 100% state.
const (
	DocumentStageWeight = 0.6
	QuestionStageWeight = 0.4

	// Within the document stage, a completed document earns its full share
	// of 60 points while an in-flight document earns a partial credit of
	// 20 points. The sum is normalized by 100/60 so that "all completed"
	// lands exactly on 100.
	completedCredit = 60.0
	analyzingCredit = 20.0
)

// DocumentStageProgress converts a job snapshot into the document stage's
// progress percentage:
//
//	docProgress       = (completed / total) * 60
//	analyzingProgress = (analyzing / total) * 20
//	stageProgress     = min(100, (docProgress + analyzingProgress) * (100 / 60))
//
// An empty snapshot yields 0.
func DocumentStageProgress(s JobSnapshot) float64 {
	if s.TotalCount == 0 {
		return 0
	}
	total := float64(s.TotalCount)
	docProgress := float64(s.CompletedCount) / total * completedCredit
	analyzingProgress := float64(s.AnalyzingCount) / total * analyzingCredit

	progress := (docProgress + analyzingProgress) * (100.0 / completedCredit)
	if progress > 100 {
		return 100
	}
	return progress
}

// OverallProgress combines the two weighted stage percentages into a single
// pipeline percentage, clamped to [0,100].
func OverallProgress(documentStage, questionStage float64) float64 {
	overall := documentStage*DocumentStageWeight + questionStage*QuestionStageWeight
	if overall < 0 {
		return 0
	}
	if overall > 100 {
		return 100
	}
	return overall
}
