// Package notify pushes task transitions to an external webhook.
// Delivery never blocks the job: events are queued to a background sender
// that retries a bounded number of times and dead-letters on exhaustion.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/slidekit/slideshow-api/internal/task"
)

// Static errors for notification mapping.
var (
	// ErrWebhookURLRequired is returned when the webhook URL is not provided.
	ErrWebhookURLRequired = errors.New("notify: webhook URL is required")
	// ErrUnknownStatus is returned when a task status has no webhook mapping.
	ErrUnknownStatus = errors.New("notify: unknown task status")
	// ErrUnknownAction is returned when a task action has no webhook mapping.
	ErrUnknownAction = errors.New("notify: unknown task action")
)

// Status is the state vocabulary of the webhook collaborator.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

// Event is the payload delivered on every task transition.
type Event struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
	Result   string `json:"result,omitempty"`
}

// NewEvent maps a task snapshot to its webhook representation.
// The mapping is exhaustive over the closed task status and action sets so
// that adding a new job kind is a compile-visible change here.
func NewEvent(t *task.Task) (Event, error) {
	var kind string
	switch t.Action {
	case task.ActionSlideshow:
		kind = string(task.ActionSlideshow)
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownAction, t.Action)
	}

	var status Status
	switch t.Status {
	case task.StatusProcessing:
		status = StatusRunning
	case task.StatusDone:
		status = StatusFinished
	case task.StatusError:
		if t.Canceled {
			status = StatusCanceled
		} else {
			status = StatusError
		}
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownStatus, t.Status)
	}

	return Event{
		ID:       t.ID,
		Kind:     kind,
		Status:   status,
		Progress: t.Progress,
		Error:    t.Error,
		Result:   t.Result,
	}, nil
}

// Webhook delivers events over HTTP POST. It implements task.Notifier.
type Webhook struct {
	url         string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger

	queue   chan Event
	started sync.Once
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// Compile-time check that Webhook implements task.Notifier.
var _ task.Notifier = (*Webhook)(nil)

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		w.httpClient = c
	}
}

// WithMaxRetries sets how many delivery attempts are made per event.
func WithMaxRetries(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the initial backoff between delivery attempts.
func WithBaseBackoff(d time.Duration) Option {
	return func(w *Webhook) {
		w.baseBackoff = d
	}
}

// WithQueueSize sets the pending-event buffer size.
func WithQueueSize(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.queue = make(chan Event, n)
		}
	}
}

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string, logger *slog.Logger, opts ...Option) (*Webhook, error) {
	if url == "" {
		return nil, ErrWebhookURLRequired
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Webhook{
		url:         url,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxRetries:  3,
		baseBackoff: time.Second,
		logger:      logger,
		queue:       make(chan Event, 64),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start launches the background sender. It returns immediately; the sender
// runs until ctx is cancelled or Close is called.
func (w *Webhook) Start(ctx context.Context) {
	w.started.Do(func() {
		go w.sendLoop(ctx)
	})
}

// Close stops accepting events and waits for the sender to drain.
// Transitions arriving after Close, such as background jobs finishing
// during shutdown, are dead-lettered rather than enqueued.
func (w *Webhook) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
}

// TaskChanged queues a task transition for delivery. It never blocks and
// never panics: a full queue or a closed notifier dead-letters the event
// to the log instead.
func (w *Webhook) TaskChanged(t *task.Task) {
	ev, err := NewEvent(t)
	if err != nil {
		w.logger.Error("notification mapping failed",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.deadLetter(ev, errors.New("notifier closed"))
		return
	}
	defer w.mu.Unlock()

	select {
	case w.queue <- ev:
	default:
		w.deadLetter(ev, errors.New("notification queue full"))
	}
}

// sendLoop drains the queue, delivering each event with bounded retries.
func (w *Webhook) sendLoop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.queue:
			if !ok {
				return
			}
			if err := w.deliver(ctx, ev); err != nil {
				w.deadLetter(ev, err)
			}
		}
	}
}

// deliver POSTs the event, retrying transient failures with backoff.
func (w *Webhook) deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = w.post(ctx, body)
		if lastErr == nil {
			w.logger.Debug("notification delivered",
				slog.String("task_id", ev.ID),
				slog.String("status", string(ev.Status)),
			)
			return nil
		}
	}

	return lastErr
}

// post performs one delivery attempt.
func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// deadLetter records an undeliverable event. The payload is logged so the
// transition is not lost silently.
func (w *Webhook) deadLetter(ev Event, err error) {
	w.logger.Error("notification dead-lettered",
		slog.String("task_id", ev.ID),
		slog.String("kind", ev.Kind),
		slog.String("status", string(ev.Status)),
		slog.Int("progress", ev.Progress),
		slog.String("result", ev.Result),
		slog.String("task_error", ev.Error),
		slog.String("error", err.Error()),
	)
}
