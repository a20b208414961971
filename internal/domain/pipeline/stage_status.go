package pipeline

import "fmt"

// StageStatus represents the execution state of a single pipeline stage.
// It enables tracking of the stage lifecycle from pending through completion
// or failure.
type StageStatus string

const (
	// StageStatusPending indicates a stage has not started yet.
	StageStatusPending StageStatus = "PENDING"

	// StageStatusProcessing indicates a stage's worker is actively running.
	StageStatusProcessing StageStatus = "PROCESSING"

	// StageStatusCompleted indicates a stage finished successfully.
	StageStatusCompleted StageStatus = "COMPLETED"

	// StageStatusFailed indicates a stage encountered an unrecoverable error.
	StageStatusFailed StageStatus = "FAILED"
)

// String returns the string representation of the StageStatus.
func (s StageStatus) String() string { return string(s) }

// IsTerminal reports whether the status admits no further transitions.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed
}

// ParseStageStatus converts a string to a StageStatus.
func ParseStageStatus(s string) StageStatus {
	switch s {
	case "PENDING", "pending":
		return StageStatusPending
	case "PROCESSING", "processing":
		return StageStatusProcessing
	case "COMPLETED", "completed":
		return StageStatusCompleted
	case "FAILED", "failed":
		return StageStatusFailed
	default:
		return "" // represents unspecified
	}
}

// validateTransition checks if a status transition is valid and returns an
// error if not.
func (s StageStatus) validateTransition(target StageStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid stage status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the stage lifecycle rules to prevent invalid
// state changes.
func (s StageStatus) isValidTransition(target StageStatus) bool {
	switch s {
	case StageStatusPending:
		// From Pending, can move to Processing or Failed. Failing directly
		// from Pending covers total document failure of the prior stage.
		return target == StageStatusProcessing || target == StageStatusFailed
	case StageStatusProcessing:
		return target == StageStatusCompleted || target == StageStatusFailed
	case StageStatusCompleted, StageStatusFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
