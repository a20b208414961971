package pipeline

import "github.com/google/uuid"

// DocumentJobView is an immutable read model of one document job, captured
// at snapshot time.
type DocumentJobView struct {
	ID       uuid.UUID
	Name     string
	Status   DocumentStatus
	Progress int
	Error    string
}

// JobSnapshot is a point-in-time view of every document job in the analysis
// stage, with the derived counts the completion check and progress math
// operate on.
type JobSnapshot struct {
	Jobs []DocumentJobView

	CompletedCount int
	AnalyzingCount int
	ErrorCount     int
	TotalCount     int
}

// NewJobSnapshot builds a snapshot from the given jobs, deriving the counts.
func NewJobSnapshot(jobs []DocumentJobView) JobSnapshot {
	s := JobSnapshot{Jobs: jobs, TotalCount: len(jobs)}
	for _, j := range jobs {
		switch j.Status {
		case DocumentStatusCompleted:
			s.CompletedCount++
		case DocumentStatusAnalyzing:
			s.AnalyzingCount++
		case DocumentStatusError:
			s.ErrorCount++
		}
	}
	return s
}

// AllProcessed reports whether every document has reached a terminal state.
// It is false for an empty snapshot: completion requires at least one job.
func (s JobSnapshot) AllProcessed() bool {
	return s.TotalCount > 0 && s.CompletedCount+s.ErrorCount == s.TotalCount
}

// AllFailed reports whether every document errored.
func (s JobSnapshot) AllFailed() bool {
	return s.AllProcessed() && s.CompletedCount == 0
}

// AnyAnalyzing reports whether at least one document is actively analyzing.
func (s JobSnapshot) AnyAnalyzing() bool { return s.AnalyzingCount > 0 }
