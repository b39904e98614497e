// Package status defines the fixed job-state vocabulary exposed through the
// queue protocol. States are derived from aggregated engine link states by
// the reconciler and are never written directly by clients, with the single
// exception of Deleted on explicit removal.
package status

type Status string

const (
	Queued      Status = "queued"
	Downloading Status = "downloading"
	Extracting  Status = "extracting"
	Completed   Status = "completed"
	Failed      Status = "failed"
	Deleted     Status = "deleted"
)

// Terminal reports whether a job in this state can still make progress.
// Completed and Failed jobs may still be removed explicitly; Deleted is final.
func (s Status) Terminal() bool {
	switch s {
	case Completed, Failed, Deleted:
		return true
	default:
		return false
	}
}

// Display returns the queue protocol's human-readable form of the state.
func (s Status) Display() string {
	switch s {
	case Queued:
		return "Queued"
	case Downloading:
		return "Downloading"
	case Extracting:
		return "Extracting"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Deleted:
		return "Deleted"
	default:
		return "Downloading"
	}
}
