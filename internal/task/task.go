// Package task tracks asynchronous render jobs in an in-process registry.
// It includes the Task entity with its state machine and the Registry that
// owns all task records and triggers notifications on every transition.
package task

import (
	"errors"
	"sync"
	"time"
)

// Action identifies the kind of render job a task tracks. It is a closed
// set; the notification mapping matches on it exhaustively.
type Action string

const (
	// ActionSlideshow composes a video slideshow from images and audio.
	ActionSlideshow Action = "slideshow"
)

// IsValid returns true if the action is a known job kind.
func (a Action) IsValid() bool {
	return a == ActionSlideshow
}

// Status represents the current state of a Task.
type Status string

const (
	// StatusProcessing indicates the job is being executed.
	StatusProcessing Status = "processing"
	// StatusDone indicates the job finished successfully.
	StatusDone Status = "done"
	// StatusError indicates the job failed.
	StatusError Status = "error"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("task: invalid state transition")

// validTransitions defines which state transitions are allowed.
// Both done and error are terminal.
var validTransitions = map[Status][]Status{
	StatusProcessing: {StatusDone, StatusError},
	StatusDone:       {},
	StatusError:      {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Task represents one tracked render job. It is owned by the Registry;
// callers only ever see clones.
type Task struct {
	mu sync.RWMutex

	// ID is the caller-supplied, externally unique identifier.
	ID string
	// Action is the job kind.
	Action Action
	// Status is the current task state.
	Status Status
	// ObjectName is the storage key the job writes its output to.
	ObjectName string
	// Progress is the percentage of completion (0-100).
	Progress int
	// Params is the submitted job specification, kept for status reads.
	Params any
	// Result is the content identifier of the uploaded output.
	Result string
	// Error contains a human-readable message if the job failed.
	Error string
	// Canceled marks a failed task that was cancelled by the caller
	// rather than failing on its own.
	Canceled bool
	// CreatedAt is when the task was created. Immutable.
	CreatedAt time.Time
	// UpdatedAt is when the task was last mutated.
	UpdatedAt time.Time
}

// newTask creates a Task in the initial processing state.
func newTask(id string, action Action, objectName string, params any) *Task {
	now := time.Now()
	return &Task{
		ID:         id,
		Action:     action,
		Status:     StatusProcessing,
		ObjectName: objectName,
		Params:     params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// complete transitions the task to done and attaches the result.
func (t *Task) complete(result string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.Status, StatusDone) {
		return ErrInvalidTransition
	}

	t.Status = StatusDone
	t.Result = result
	t.Progress = 100
	t.UpdatedAt = time.Now()
	return nil
}

// fail transitions the task to error with a message. canceled marks the
// failure as caller-initiated.
func (t *Task) fail(errMsg string, canceled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.Status, StatusError) {
		return ErrInvalidTransition
	}

	t.Status = StatusError
	t.Error = errMsg
	t.Canceled = canceled
	t.UpdatedAt = time.Now()
	return nil
}

// setProgress updates the progress percentage on a running task.
// Progress updates on terminal tasks are ignored.
func (t *Task) setProgress(progress int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status != StatusProcessing {
		return false
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.Progress = progress
	t.UpdatedAt = time.Now()
	return true
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status == StatusDone || t.Status == StatusError
}

// Clone creates a copy of the task for safe reads.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:         t.ID,
		Action:     t.Action,
		Status:     t.Status,
		ObjectName: t.ObjectName,
		Progress:   t.Progress,
		Params:     t.Params,
		Result:     t.Result,
		Error:      t.Error,
		Canceled:   t.Canceled,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
