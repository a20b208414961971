package pipeline

import (
	"errors"
	"fmt"
)

// DocumentStatus represents the analysis state of a single input document.
// Status is monotonic: pending -> analyzing -> {completed | error}; it never
// regresses.
type DocumentStatus string

// ErrDocumentStatusUnknown is returned when a document status is unknown.
var ErrDocumentStatusUnknown = errors.New("document status unknown")

const (
	// DocumentStatusPending indicates a document is queued for analysis.
	DocumentStatusPending DocumentStatus = "PENDING"

	// DocumentStatusAnalyzing indicates a worker is actively analyzing the
	// document.
	DocumentStatusAnalyzing DocumentStatus = "ANALYZING"

	// DocumentStatusCompleted indicates analysis finished successfully.
	DocumentStatusCompleted DocumentStatus = "COMPLETED"

	// DocumentStatusError indicates analysis failed for this document.
	DocumentStatusError DocumentStatus = "ERROR"
)

// String returns the string representation of the DocumentStatus.
func (s DocumentStatus) String() string { return string(s) }

// IsTerminal reports whether the document has finished processing, in
// either outcome.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusError
}

// ParseDocumentStatus converts a string to a DocumentStatus.
func ParseDocumentStatus(s string) DocumentStatus {
	switch s {
	case "PENDING", "pending":
		return DocumentStatusPending
	case "ANALYZING", "analyzing":
		return DocumentStatusAnalyzing
	case "COMPLETED", "completed":
		return DocumentStatusCompleted
	case "ERROR", "error":
		return DocumentStatusError
	default:
		return "" // represents unspecified
	}
}

// validateTransition checks if a status transition is valid and returns an
// error if not.
func (s DocumentStatus) validateTransition(target DocumentStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid document status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the monotonic document lifecycle.
func (s DocumentStatus) isValidTransition(target DocumentStatus) bool {
	switch s {
	case DocumentStatusPending:
		// A document may jump straight to a terminal state when the worker
		// reports it in a single update.
		return target == DocumentStatusAnalyzing || target == DocumentStatusCompleted || target == DocumentStatusError
	case DocumentStatusAnalyzing:
		return target == DocumentStatusCompleted || target == DocumentStatusError
	case DocumentStatusCompleted, DocumentStatusError:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
