// Package pipeline contains the domain model for the proposal analysis
// pipeline: stages, per-document jobs, the session aggregate, and the
// progress math that turns job state into stage and overall percentages.
package pipeline

import "fmt"

// Stage identifies one phase of the proposal pipeline. Stages are ordered
// and a session only ever moves forward through them, except on an explicit
// restart which returns the session to setup.
type Stage string

const (
	// StageSetup is the initial phase before any worker has been started.
	StageSetup Stage = "SETUP"

	// StageDocumentAnalysis covers the per-document AI analysis phase.
	StageDocumentAnalysis Stage = "DOCUMENT_ANALYSIS"

	// StageQuestionGeneration covers follow-up question generation.
	StageQuestionGeneration Stage = "QUESTION_GENERATION"

	// StageReport is the terminal phase; once its artifact exists the
	// pipeline is done.
	StageReport Stage = "REPORT"
)

// String returns the string representation of the Stage.
func (s Stage) String() string { return string(s) }

// stageOrder defines the forward progression of the pipeline.
var stageOrder = []Stage{StageSetup, StageDocumentAnalysis, StageQuestionGeneration, StageReport}

// Ordinal returns the position of the stage in pipeline order, or -1 for an
// unknown stage.
func (s Stage) Ordinal() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows this one. The second return value is
// false when the stage is terminal or unknown.
func (s Stage) Next() (Stage, bool) {
	ord := s.Ordinal()
	if ord < 0 || ord+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[ord+1], true
}

// Before reports whether this stage precedes the other in pipeline order.
func (s Stage) Before(other Stage) bool {
	return s.Ordinal() >= 0 && other.Ordinal() >= 0 && s.Ordinal() < other.Ordinal()
}

// ParseStage converts a string to a Stage.
func ParseStage(s string) Stage {
	switch s {
	case "SETUP", "setup":
		return StageSetup
	case "DOCUMENT_ANALYSIS", "document_analysis":
		return StageDocumentAnalysis
	case "QUESTION_GENERATION", "question_generation":
		return StageQuestionGeneration
	case "REPORT", "report":
		return StageReport
	default:
		return "" // represents unspecified
	}
}

// ValidateAdvance checks that moving from this stage to the target is a
// forward step and returns an error if not.
func (s Stage) ValidateAdvance(target Stage) error {
	if !s.Before(target) {
		return fmt.Errorf("invalid stage advance from %s to %s", s, target)
	}
	return nil
}
