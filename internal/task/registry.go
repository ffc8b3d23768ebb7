package task

import (
	"errors"
	"log/slog"
	"sync"
)

// Static errors for registry operations.
var (
	// ErrTaskExists is returned when creating a task with an id already in use.
	ErrTaskExists = errors.New("task: id already exists")
	// ErrTaskNotFound is returned when a task cannot be found by id.
	ErrTaskNotFound = errors.New("task: not found")
)

// Notifier receives a snapshot of a task after every transition.
// Implementations must not block; delivery is best effort.
type Notifier interface {
	TaskChanged(t *Task)
}

// Registry is the in-process task store. The registry map is guarded by
// its own lock for insert and lookup only; mutations are serialized per
// task by the task's own mutex, so unrelated jobs never contend.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	notifier Notifier
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNotifier sets the notifier invoked on every task transition.
func WithNotifier(n Notifier) RegistryOption {
	return func(r *Registry) {
		r.notifier = n
	}
}

// NewRegistry creates an empty task registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tasks:  make(map[string]*Task),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create inserts a new task in the processing state and notifies.
// Returns ErrTaskExists if the id is already in use; the existing record
// is untouched.
func (r *Registry) Create(id string, action Action, objectName string, params any) (*Task, error) {
	t := newTask(id, action, objectName, params)

	r.mu.Lock()
	if _, ok := r.tasks[id]; ok {
		r.mu.Unlock()
		return nil, ErrTaskExists
	}
	r.tasks[id] = t
	r.mu.Unlock()

	r.logger.Info("task created",
		slog.String("task_id", id),
		slog.String("action", string(action)),
		slog.String("object", objectName),
	)

	r.notify(t)
	return t.Clone(), nil
}

// Get returns a snapshot of the task with the given id.
func (r *Registry) Get(id string) (*Task, error) {
	t, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Complete transitions the task to done with the given result and notifies.
func (r *Registry) Complete(id, result string) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := t.complete(result); err != nil {
		return err
	}

	r.logger.Info("task completed",
		slog.String("task_id", id),
		slog.String("result", result),
	)

	r.notify(t)
	return nil
}

// Fail transitions the task to error with the given message and notifies.
func (r *Registry) Fail(id, errMsg string) error {
	return r.fail(id, errMsg, false)
}

// Cancel transitions the task to error, marked as caller-cancelled, and
// notifies.
func (r *Registry) Cancel(id, errMsg string) error {
	return r.fail(id, errMsg, true)
}

func (r *Registry) fail(id, errMsg string, canceled bool) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := t.fail(errMsg, canceled); err != nil {
		return err
	}

	r.logger.Warn("task failed",
		slog.String("task_id", id),
		slog.String("error", errMsg),
		slog.Bool("canceled", canceled),
	)

	r.notify(t)
	return nil
}

// SetProgress updates the progress of a running task and notifies.
// Progress updates on terminal or unknown tasks are dropped silently.
func (r *Registry) SetProgress(id string, progress int) {
	t, err := r.lookup(id)
	if err != nil {
		return
	}
	if t.setProgress(progress) {
		r.notify(t)
	}
}

// lookup returns the live task record for internal mutation.
func (r *Registry) lookup(id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// notify hands a snapshot to the notifier, if any.
func (r *Registry) notify(t *Task) {
	if r.notifier == nil {
		return
	}
	r.notifier.TaskChanged(t.Clone())
}
