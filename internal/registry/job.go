package registry

import (
	"time"

	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/status"
)

// Job is the unit of download-queue tracking. The link set is immutable
// after creation; State is derived by the reconciler and only written
// directly on explicit removal.
type Job struct {
	ID          string          `json:"id"`     // synthetic id, equal to the release id that spawned it
	NzoID       string          `json:"nzo_id"` // queue-protocol acceptance id
	Title       string          `json:"title"`
	Label       string          `json:"label"` // category/target client label
	Links       []string        `json:"links"`
	Handles     []bridge.Handle `json:"handles"`
	PackageName string          `json:"package_name"`
	State       status.Status   `json:"state"`
	SizeTotal   int64           `json:"size_total"`
	SizeLoaded  int64           `json:"size_loaded"`
	Speed       int64           `json:"speed"`
	ETA         int64           `json:"eta"`
	OutputPath  string          `json:"output_path,omitempty"`
	ErrorReason string          `json:"error_reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
}

// Progress returns the completion percentage, 0-100.
func (j *Job) Progress() float64 {
	if j.SizeTotal <= 0 {
		if j.State == status.Completed {
			return 100
		}
		return 0
	}

	p := float64(j.SizeLoaded) / float64(j.SizeTotal) * 100
	if p > 100 {
		p = 100
	}

	return p
}

// clone returns a snapshot copy safe to hand out without holding locks.
func (j *Job) clone() *Job {
	c := *j
	c.Links = append([]string(nil), j.Links...)
	c.Handles = append([]bridge.Handle(nil), j.Handles...)
	return &c
}
