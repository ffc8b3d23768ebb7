package slideshow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slidekit/slideshow-api/internal/filtergraph"
	"github.com/slidekit/slideshow-api/internal/storage"
	"github.com/slidekit/slideshow-api/internal/task"
)

// outputContentType is the content type of composed slideshows.
const outputContentType = "video/mp4"

// Transcoder runs the external transcoding process against piped inputs.
// pipeline.Runner is the production implementation.
type Transcoder interface {
	Run(ctx context.Context, args []string, inputs []io.Reader) error
}

// Service orchestrates slideshow jobs: it validates specs, tracks them in
// the task registry, and executes the open-streams / build-graph /
// transcode / upload sequence.
type Service struct {
	store      storage.Storage
	registry   *task.Registry
	transcoder Transcoder
	graphOpts  filtergraph.Options
	tempDir    string
	logger     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	pending map[string]struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithGraphOptions sets the canvas and pixel format used for every job.
func WithGraphOptions(opts filtergraph.Options) ServiceOption {
	return func(s *Service) {
		s.graphOpts = opts
	}
}

// WithTempDir sets where intermediate output files are written.
func WithTempDir(dir string) ServiceOption {
	return func(s *Service) {
		s.tempDir = dir
	}
}

// NewService creates a slideshow service.
func NewService(store storage.Storage, registry *task.Registry, transcoder Transcoder, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      store,
		registry:   registry,
		transcoder: transcoder,
		graphOpts:  filtergraph.DefaultOptions(),
		tempDir:    os.TempDir(),
		logger:     logger,
		cancels:    make(map[string]context.CancelFunc),
		pending:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the spec and registers a task for it. Validation
// failures are returned before any task record exists; a duplicate id
// returns task.ErrTaskExists with the original record untouched.
func (s *Service) Create(id string, spec Spec) (*task.Task, error) {
	if err := spec.Validate(s.graphOpts); err != nil {
		return nil, err
	}
	return s.registry.Create(id, task.ActionSlideshow, spec.Output, spec)
}

// GetTask returns a snapshot of the task with the given id.
func (s *Service) GetTask(id string) (*task.Task, error) {
	return s.registry.Get(id)
}

// Run executes a previously created job and records its terminal state.
// The job owns a cancellable context for its whole lifetime; Cancel
// triggers it. Run itself returns the execution error for logging, the
// task record is the source of truth for callers.
func (s *Service) Run(ctx context.Context, id string, spec Spec) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.trackCancel(id, cancel)
	defer func() {
		s.untrackCancel(id)
		cancel()
	}()

	etag, err := s.execute(runCtx, id, spec)
	if err != nil {
		if runCtx.Err() != nil || errors.Is(err, context.Canceled) {
			s.logger.Info("job canceled", slog.String("task_id", id))
			if cancelErr := s.registry.Cancel(id, "job canceled"); cancelErr != nil {
				s.logger.Error("record cancel failed",
					slog.String("task_id", id),
					slog.String("error", cancelErr.Error()),
				)
			}
			return err
		}

		s.logger.Error("job failed",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		if failErr := s.registry.Fail(id, err.Error()); failErr != nil {
			s.logger.Error("record failure failed",
				slog.String("task_id", id),
				slog.String("error", failErr.Error()),
			)
		}
		return err
	}

	if err := s.registry.Complete(id, etag); err != nil {
		s.logger.Error("record completion failed",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Info("job done",
		slog.String("task_id", id),
		slog.String("output", spec.Output),
		slog.String("etag", etag),
	)
	return nil
}

// Cancel requests cancellation of a running job.
// Returns task.ErrTaskNotFound for unknown ids and task.ErrInvalidTransition
// when the job already reached a terminal state. A cancel that arrives
// before the job starts running is remembered and applied when it does.
func (s *Service) Cancel(id string) error {
	t, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if t.IsTerminal() {
		return task.ErrInvalidTransition
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	if !ok {
		s.pending[id] = struct{}{}
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// execute performs one composition: open every asset stream, build the
// graph, run the transcoder, upload the output. Image streams occupy the
// first input channels and audio the following ones, matching the
// positional stream references in the graph.
func (s *Service) execute(ctx context.Context, id string, spec Spec) (string, error) {
	keys := make([]string, 0, len(spec.Images)+len(spec.Audio))
	for _, seg := range spec.Images {
		keys = append(keys, seg.Key)
	}
	for _, seg := range spec.Audio {
		keys = append(keys, seg.Key)
	}

	streams := make([]io.ReadCloser, len(keys))
	defer func() {
		for _, rc := range streams {
			if rc != nil {
				_ = rc.Close()
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			rc, err := s.store.OpenRead(gctx, key)
			if err != nil {
				return fmt.Errorf("open asset %q: %w", key, err)
			}
			streams[i] = rc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	s.registry.SetProgress(id, 10)

	graph, err := filtergraph.Build(spec.graphSpec(), s.graphOpts)
	if err != nil {
		return "", err
	}

	out, err := os.CreateTemp(s.tempDir, "slideshow-*.mp4")
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()
	defer func() { _ = os.Remove(outPath) }()

	inputs := make([]io.Reader, len(streams))
	for i, rc := range streams {
		inputs[i] = rc
	}

	if err := s.transcoder.Run(ctx, graph.Args(outPath), inputs); err != nil {
		return "", err
	}

	s.registry.SetProgress(id, 80)

	f, err := os.Open(outPath) // #nosec G304 - path created by this function
	if err != nil {
		return "", fmt.Errorf("open output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	etag, err := s.store.Put(ctx, spec.Output, f, outputContentType)
	if err != nil {
		return "", fmt.Errorf("upload output %q: %w", spec.Output, err)
	}

	return etag, nil
}

// trackCancel registers the job's cancel func. A cancel requested before
// the job started takes effect immediately.
func (s *Service) trackCancel(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	_, canceled := s.pending[id]
	delete(s.pending, id)
	s.cancels[id] = cancel
	s.mu.Unlock()

	if canceled {
		cancel()
	}
}

func (s *Service) untrackCancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)
	delete(s.pending, id)
}
