package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunner_Run_Success(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", testLogger())

	err := r.Run(context.Background(),
		[]string{"-c", "cat <&3 >/dev/null"},
		[]io.Reader{strings.NewReader("hello pipeline")},
	)
	require.NoError(t, err)
}

func TestRunner_Run_MultipleInputs(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", testLogger())

	// Consume the pipes in reverse order to exercise independent copies.
	err := r.Run(context.Background(),
		[]string{"-c", "cat <&5 >/dev/null; cat <&4 >/dev/null; cat <&3 >/dev/null"},
		[]io.Reader{
			strings.NewReader(strings.Repeat("a", 1000)),
			strings.NewReader(strings.Repeat("b", 1000)),
			strings.NewReader(strings.Repeat("c", 1000)),
		},
	)
	require.NoError(t, err)
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", testLogger())

	err := r.Run(context.Background(),
		[]string{"-c", "echo boom >&2; exit 1"},
		nil,
	)
	require.Error(t, err)

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 1, procErr.ExitCode)
	assert.Contains(t, procErr.Stderr, "boom")
}

func TestRunner_Run_SpawnFailure(t *testing.T) {
	r := NewRunner("/nonexistent/transcoder-binary", testLogger())

	err := r.Run(context.Background(), nil, nil)
	require.Error(t, err)

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, -1, procErr.ExitCode)
}

func TestRunner_Run_BrokenPipeSwallowed(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", testLogger())

	// The process never reads its input and exits cleanly; writing the
	// remainder of a large input fails with a broken pipe, which must not
	// fail the run.
	big := bytes.Repeat([]byte("x"), 1<<20)
	err := r.Run(context.Background(),
		[]string{"-c", "exit 0"},
		[]io.Reader{bytes.NewReader(big)},
	)
	require.NoError(t, err)
}

// errReader fails after yielding some bytes.
type errReader struct {
	data []byte
	err  error
	pos  int
}

func (e *errReader) Read(p []byte) (int, error) {
	if e.pos < len(e.data) {
		n := copy(p, e.data[e.pos:])
		e.pos += n
		return n, nil
	}
	return 0, e.err
}

func TestRunner_Run_SourceReadFailure(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", testLogger())

	readFail := errors.New("asset stream broke")
	start := time.Now()

	// The process would block reading fd 3 forever; a source failure must
	// terminate it rather than hang.
	err := r.Run(context.Background(),
		[]string{"-c", "cat <&3 >/dev/null; sleep 30"},
		[]io.Reader{&errReader{data: []byte("partial"), err: readFail}},
	)
	require.Error(t, err)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, 0, streamErr.Index)
	assert.ErrorIs(t, err, readFail)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunner_Run_Cancellation(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	// A never-ending reader keeps the copy goroutine busy for the whole run.
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	start := time.Now()
	err := r.Run(ctx, []string{"-c", "sleep 30"}, []io.Reader{pr})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}
