package domain

import "time"

// RunStatus enumerates batch run lifecycle states.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// TaskState enumerates per-task lifecycle states. Terminal states are final;
// a task never transitions back.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateInProgress TaskState = "in_progress"
	TaskStateSucceeded  TaskState = "succeeded"
	TaskStateFailed     TaskState = "failed"
)

// Terminal reports whether the state admits no further transition.
func (s TaskState) Terminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// BatchRun records one batch execution. Progress is a rounded percentage and
// is monotonically non-decreasing within a run.
type BatchRun struct {
	ID           string
	SessionKey   string
	Prompt       string
	Status       RunStatus
	Progress     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskRecord is the persisted per-task outcome of a batch run. Every record's
// task identifier was present in the submitted task list; identifiers are
// fixed at submission time.
type TaskRecord struct {
	RunID        string
	TaskID       string
	Position     int
	State        TaskState
	StorageKey   string
	MIME         string
	ErrorMessage string
	UpdatedAt    time.Time
}
