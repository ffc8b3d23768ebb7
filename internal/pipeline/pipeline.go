// Package pipeline runs the external transcoder against a set of piped
// input streams. Each source stream is copied into its own file descriptor
// of a single ffmpeg process; the run resolves once every copy has finished
// and the process has exited.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// copyBufferSize is the chunk size used when feeding input pipes. Copies
// check for cancellation between chunks.
const copyBufferSize = 32 * 1024

// stderrTailBytes bounds how much diagnostic text is attached to errors.
const stderrTailBytes = 8 * 1024

// ProcessError is returned when the transcoder could not be spawned or
// exited with a non-zero status. It carries the exit code and the captured
// error-channel output.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("transcoder failed (exit code %d): %v\nstderr: %s", e.ExitCode, e.Err, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// StreamError is returned when a source input stream could not be read.
// It identifies which input channel failed.
type StreamError struct {
	Index int
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("input stream %d: %v", e.Index, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Runner spawns transcoder processes. It is safe for concurrent use; each
// Run owns its own process and pipe set.
type Runner struct {
	binPath string
	logger  *slog.Logger
}

// NewRunner creates a Runner for the given transcoder binary.
// If binPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewRunner(binPath string, logger *slog.Logger) *Runner {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{binPath: binPath, logger: logger}
}

// Run spawns the transcoder with args, feeding each entry of inputs into
// its own pipe on descriptors 3 and up, in order. It returns nil only when
// every input has been fully copied and the process exited with status 0.
//
// A read failure on any source stream aborts the process and is returned
// as a StreamError. Write failures caused by the process closing its input
// side early (broken pipe) are expected during normal wind-down and are
// not treated as errors. Cancelling ctx terminates the process; in-flight
// copies observe the cancellation and stop.
func (r *Runner) Run(ctx context.Context, args []string, inputs []io.Reader) error {
	procCtx, stopProc := context.WithCancel(ctx)
	defer stopProc()

	// #nosec G204 - binPath and args are built by the application, not user input
	cmd := exec.CommandContext(procCtx, r.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	writers := make([]*os.File, len(inputs))
	readers := make([]*os.File, len(inputs))
	closeAll := func(files []*os.File) {
		for _, f := range files {
			if f != nil {
				_ = f.Close()
			}
		}
	}

	for i := range inputs {
		pr, pw, err := os.Pipe()
		if err != nil {
			closeAll(writers)
			closeAll(readers)
			return fmt.Errorf("create input pipe %d: %w", i, err)
		}
		readers[i] = pr
		writers[i] = pw
		// ExtraFiles[n] becomes descriptor 3+n in the child.
		cmd.ExtraFiles = append(cmd.ExtraFiles, pr)
	}

	r.logger.Debug("starting transcoder",
		slog.String("bin", r.binPath),
		slog.Int("inputs", len(inputs)),
	)

	if err := cmd.Start(); err != nil {
		closeAll(writers)
		closeAll(readers)
		return &ProcessError{ExitCode: -1, Err: fmt.Errorf("spawn transcoder: %w", err)}
	}

	// The child holds its own duplicates of the read ends.
	closeAll(readers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range inputs {
		g.Go(func() error {
			defer func() { _ = writers[i].Close() }()
			return copyStream(gctx, i, writers[i], inputs[i])
		})
	}

	copyDone := make(chan error, 1)
	go func() { copyDone <- g.Wait() }()

	var copyErr error
	select {
	case copyErr = <-copyDone:
		if copyErr != nil && ctx.Err() == nil {
			// A source failed; the process will never see end-of-stream
			// on that pipe, so terminate it rather than wait forever.
			stopProc()
		}
	case <-ctx.Done():
		// Cancelled: kill the process and return without waiting for
		// copies blocked on slow sources. Closing the source streams,
		// owned by the caller, unblocks and ends those copies.
		stopProc()
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("pipeline cancelled: %w", ctx.Err())
	}
	if copyErr != nil {
		return copyErr
	}
	if waitErr != nil {
		return &ProcessError{
			ExitCode: exitCode(waitErr),
			Stderr:   tail(stderr.String(), stderrTailBytes),
			Err:      waitErr,
		}
	}

	r.logger.Debug("transcoder finished",
		slog.Int("stdout_bytes", stdout.Len()),
		slog.Int("stderr_bytes", stderr.Len()),
	)

	return nil
}

// copyStream copies src into the pipe until end-of-stream, checking for
// cancellation between chunks.
func copyStream(ctx context.Context, index int, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyBufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				if isBrokenPipe(writeErr) {
					// The process closed this input while finishing;
					// drain no further.
					return nil
				}
				return &StreamError{Index: index, Err: fmt.Errorf("write to transcoder: %w", writeErr)}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return &StreamError{Index: index, Err: readErr}
		}
	}
}

// isBrokenPipe reports whether a write failed because the reading side of
// the pipe was closed.
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

// exitCode extracts the process exit code from a Wait error.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
