package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slidekit/slideshow-api/internal/slideshow"
	"github.com/slidekit/slideshow-api/internal/task"
)

// mockStorage implements storage.Storage for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorage) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, key, body, contentType)
	return args.String(0), args.Error(1)
}

// mockTranscoder implements slideshow.Transcoder for testing.
type mockTranscoder struct {
	mock.Mock
}

func (m *mockTranscoder) Run(ctx context.Context, args []string, inputs []io.Reader) error {
	called := m.Called(ctx, args, inputs)
	return called.Error(0)
}

func newTestHandlers(t *testing.T) (*Handlers, *task.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	registry := task.NewRegistry(logger)
	svc := slideshow.NewService(&mockStorage{}, registry, &mockTranscoder{}, logger,
		slideshow.WithTempDir(t.TempDir()),
	)

	// Disable async processing so tests never race background goroutines
	handlers := NewHandlers(svc, logger, WithAsyncProcessing(false))
	return handlers, registry
}

func validRequestBody() map[string]any {
	return map[string]any{
		"id":            "job-1",
		"image_keys":    []string{"img/a.jpg", "img/b.jpg", "img/c.jpg"},
		"image_timings": []float64{5, 5, 5},
		"audio_keys":    []string{"snd/a.mp3", "snd/b.mp3", "snd/c.mp3"},
		"audio_timings": []float64{5, 5, 5},
		"transition":    1,
		"output":        "out/video.mp4",
	}
}

func postSlideshow(t *testing.T, h *Handlers, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/slideshows", &buf)
	rec := httptest.NewRecorder()
	h.CreateSlideshow(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestCreateSlideshow_Accepted(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := postSlideshow(t, h, validRequestBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateSlideshowResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, string(task.StatusProcessing), resp.Status)
}

func TestCreateSlideshow_GeneratesID(t *testing.T) {
	h, _ := newTestHandlers(t)

	body := validRequestBody()
	delete(body, "id")

	rec := postSlideshow(t, h, body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateSlideshowResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
}

func TestCreateSlideshow_InvalidJSON(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/slideshows", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.CreateSlideshow(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")
}

func TestCreateSlideshow_MissingFields(t *testing.T) {
	h, _ := newTestHandlers(t)

	body := validRequestBody()
	delete(body, "output")

	rec := postSlideshow(t, h, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestCreateSlideshow_CountMismatch(t *testing.T) {
	h, _ := newTestHandlers(t)

	body := validRequestBody()
	body["image_timings"] = []float64{5, 5}

	rec := postSlideshow(t, h, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestCreateSlideshow_OutputTargetsRoot(t *testing.T) {
	h, _ := newTestHandlers(t)

	body := validRequestBody()
	body["output"] = "/"

	rec := postSlideshow(t, h, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSlideshow_Duplicate(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := postSlideshow(t, h, validRequestBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = postSlideshow(t, h, validRequestBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "TASK_EXISTS")

	// The original record is untouched
	req := httptest.NewRequest(http.MethodGet, "/tasks/job-1", nil)
	req.SetPathValue("id", "job-1")
	getRec := httptest.NewRecorder()
	h.GetTask(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(getRec.Body).Decode(&resp))
	assert.Equal(t, string(task.StatusProcessing), resp.Status)
}

func TestGetTask_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/tasks/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()
	h.GetTask(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "TASK_NOT_FOUND")
}

func TestGetTask_Completed(t *testing.T) {
	h, registry := newTestHandlers(t)

	rec := postSlideshow(t, h, validRequestBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, registry.Complete("job-1", "etag-123"))

	req := httptest.NewRequest(http.MethodGet, "/tasks/job-1", nil)
	req.SetPathValue("id", "job-1")
	getRec := httptest.NewRecorder()
	h.GetTask(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(getRec.Body).Decode(&resp))
	assert.Equal(t, string(task.StatusDone), resp.Status)
	assert.Equal(t, "etag-123", resp.Result)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, "out/video.mp4", resp.ObjectName)
}

func TestCancelTask_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodDelete, "/tasks/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()
	h.CancelTask(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTask_Terminal(t *testing.T) {
	h, registry := newTestHandlers(t)

	rec := postSlideshow(t, h, validRequestBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, registry.Complete("job-1", "etag-123"))

	req := httptest.NewRequest(http.MethodDelete, "/tasks/job-1", nil)
	req.SetPathValue("id", "job-1")
	cancelRec := httptest.NewRecorder()
	h.CancelTask(cancelRec, req)

	assert.Equal(t, http.StatusConflict, cancelRec.Code)
	assert.Contains(t, cancelRec.Body.String(), "TASK_TERMINAL")
}

func TestRouter_Wiring(t *testing.T) {
	h, _ := newTestHandlers(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	router := NewRouter(h, logger, DefaultConfig())

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
