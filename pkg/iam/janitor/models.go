package janitor

import "time"

// Status represents the current state of a queued task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// Task is a unit of maintenance work to be enqueued.
type Task struct {
	Name string `json:"name"`

	// MaxRetries is the maximum number of retry attempts before the run is
	// abandoned until the next recurrence.
	MaxRetries int `json:"max_retries"`
}

// TaskInfo is the full representation of a task stored in the backend.
type TaskInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	MaxRetries int       `json:"max_retries"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
