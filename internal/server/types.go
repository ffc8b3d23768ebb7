// Package server provides the HTTP surface for the slideshow API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// CreateSlideshowRequest is the HTTP request body for submitting a slideshow job.
// Keys and timings are parallel lists per asset kind; image and audio
// counts are independent of each other.
type CreateSlideshowRequest struct {
	// ID is the caller-supplied unique job identifier. Generated when omitted.
	ID string `json:"id" validate:"omitempty,max=128"`
	// ImageKeys are the storage keys of the slideshow images, in order.
	ImageKeys []string `json:"image_keys" validate:"required,min=1,dive,required"`
	// ImageTimings are the display durations in seconds, one per image.
	ImageTimings []float64 `json:"image_timings" validate:"required,min=1"`
	// AudioKeys are the storage keys of the audio clips, in order.
	AudioKeys []string `json:"audio_keys" validate:"required,min=1,dive,required"`
	// AudioTimings are the playback durations in seconds, one per clip.
	AudioTimings []float64 `json:"audio_timings" validate:"required,min=1"`
	// Transition is the optional crossfade duration in seconds.
	Transition float64 `json:"transition" validate:"omitempty,gt=0"`
	// Output is the storage key the composed video is written to.
	Output string `json:"output" validate:"required"`
}

// CreateSlideshowResponse is the HTTP response after submitting a job.
type CreateSlideshowResponse struct {
	// ID is the unique identifier of the created task.
	ID string `json:"id"`
	// Status is the initial task status.
	Status string `json:"status"`
}

// TaskResponse is the HTTP response for reading task details.
type TaskResponse struct {
	// ID is the unique identifier of the task.
	ID string `json:"id"`
	// Action is the job kind.
	Action string `json:"action"`
	// Status is the current task status.
	Status string `json:"status"`
	// ObjectName is the storage key of the output.
	ObjectName string `json:"object_name"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Result is the content identifier of the output, when done.
	Result string `json:"result,omitempty"`
	// Error contains the failure message, when failed.
	Error string `json:"error,omitempty"`
	// Canceled is true when the failure was caller-initiated.
	Canceled bool `json:"canceled,omitempty"`
	// CreatedAt is the task creation time in RFC 3339.
	CreatedAt string `json:"created_at"`
	// UpdatedAt is the last mutation time in RFC 3339.
	UpdatedAt string `json:"updated_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
