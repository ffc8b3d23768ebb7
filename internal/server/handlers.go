package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lithammer/shortuuid/v4"

	"github.com/slidekit/slideshow-api/internal/slideshow"
	"github.com/slidekit/slideshow-api/internal/task"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *slideshow.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, submitting a slideshow only creates the task and returns
// without starting the job; tests use this to avoid background goroutines.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *slideshow.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateSlideshow handles POST /slideshows requests.
func (h *Handlers) CreateSlideshow(w http.ResponseWriter, r *http.Request) {
	var req CreateSlideshowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if req.ID == "" {
		req.ID = shortuuid.New()
	}

	spec, err := slideshow.NewSpec(req.ImageKeys, req.ImageTimings, req.AudioKeys, req.AudioTimings, req.Transition, req.Output)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	created, err := h.service.Create(req.ID, spec)
	if err != nil {
		if errors.Is(err, task.ErrTaskExists) {
			writeError(w, http.StatusConflict, "task id already exists", "TASK_EXISTS")
			return
		}
		// Create only fails on validation or conflict; everything else
		// was checked above.
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	// Run the job in the background with a detached context so it
	// survives the end of this request.
	if h.enableAsyncProcess {
		go func(ctx context.Context, id string, spec slideshow.Spec) {
			if runErr := h.service.Run(ctx, id, spec); runErr != nil {
				h.logger.Error("background job failed",
					slog.String("task_id", id),
					slog.String("error", runErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), created.ID, spec)
	}

	h.logger.Info("slideshow submitted",
		slog.String("task_id", created.ID),
		slog.Int("images", len(spec.Images)),
		slog.Int("audio", len(spec.Audio)),
		slog.String("output", spec.Output),
	)

	writeJSON(w, http.StatusAccepted, CreateSlideshowResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetTask handles GET /tasks/{id} requests.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	found, err := h.service.GetTask(taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get task", "TASK_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, TaskResponse{
		ID:         found.ID,
		Action:     string(found.Action),
		Status:     string(found.Status),
		ObjectName: found.ObjectName,
		Progress:   found.Progress,
		Result:     found.Result,
		Error:      found.Error,
		Canceled:   found.Canceled,
		CreatedAt:  found.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  found.UpdatedAt.Format(time.RFC3339),
	})
}

// CancelTask handles DELETE /tasks/{id} requests.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	if err := h.service.Cancel(taskID); err != nil {
		switch {
		case errors.Is(err, task.ErrTaskNotFound):
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		case errors.Is(err, task.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "task already finished", "TASK_TERMINAL")
		default:
			h.logger.Error("failed to cancel task",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel task", "TASK_CANCEL_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": taskID, "status": "canceling"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
