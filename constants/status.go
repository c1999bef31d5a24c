package constants

// JobStatus is the canonical lifecycle status for a processing job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "PENDING"    // created at upload, waiting for a worker
	JobStatusProcessing JobStatus = "PROCESSING" // a worker owns it right now
	JobStatusExtracted  JobStatus = "EXTRACTED"  // extraction succeeded, awaiting confirmation
	JobStatusError      JobStatus = "ERROR"      // terminal for the pipeline; manual resubmission only
	JobStatusCompleted  JobStatus = "COMPLETED"  // user confirmed the result (set outside the pipeline)
)

// transitions lists the allowed forward edges of the state machine.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusExtracted, JobStatusError},
	JobStatusExtracted:  {JobStatusCompleted},
}

// CanTransition reports whether moving from one status to another is a legal
// forward transition. Backward transitions (user correction) are not the
// pipeline's business and always return false here.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the pipeline will never touch a job in this
// status again on its own.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusError || s == JobStatusCompleted
}
