package vision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/frame"
)

const (
	// DefaultTimeout bounds one classification round trip.
	DefaultTimeout = 5 * time.Second

	// DefaultStartupTimeout bounds model loading, which includes the
	// download on a first run.
	DefaultStartupTimeout = 3 * time.Minute

	// readyLine is logged by the worker once its model is loaded.
	readyLine = "emotion worker ready"
)

// PythonConfig describes the worker process.
type PythonConfig struct {
	Command        string
	Args           []string
	Timeout        time.Duration
	StartupTimeout time.Duration
}

// PythonClassifier runs classification in a Python subprocess speaking
// length-prefixed MsgPack over stdin/stdout. Requests are serialized.
type PythonClassifier struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.Reader
	timeout time.Duration

	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	exited    chan struct{}

	requests atomic.Uint64
}

// StartPython spawns the worker and returns a classifier bound to it once
// the worker reports its model is loaded.
func StartPython(ctx context.Context, cfg PythonConfig) (*PythonClassifier, error) {
	if cfg.Command == "" {
		return nil, errors.New("classifier command is required")
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting classifier worker: %w", err)
	}

	c := newPipeClassifier(stdin, stdout, cfg.Timeout)
	c.cmd = cmd
	c.exited = make(chan struct{})

	ready := make(chan struct{})
	go logStderr(stderr, ready)
	go c.waitProcess(ctx)

	startup := cfg.StartupTimeout
	if startup <= 0 {
		startup = DefaultStartupTimeout
	}
	timer := time.NewTimer(startup)
	defer timer.Stop()

	select {
	case <-ready:
	case <-c.exited:
		return nil, fmt.Errorf("classifier worker exited during startup: %w", ErrWorkerClosed)
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-c.exited
		return nil, fmt.Errorf("classifier worker not ready after %s", startup)
	case <-ctx.Done():
		<-c.exited
		return nil, ctx.Err()
	}

	slog.Info("classifier worker started",
		"command", cfg.Command,
		"pid", cmd.Process.Pid,
		"timeout", c.timeout,
	)

	return c, nil
}

func newPipeClassifier(stdin io.WriteCloser, stdout io.Reader, timeout time.Duration) *PythonClassifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PythonClassifier{
		stdin:   stdin,
		stdout:  stdout,
		timeout: timeout,
	}
}

// Detect sends f to the worker and waits for its verdict.
func (c *PythonClassifier) Detect(ctx context.Context, f frame.Frame) (Result, error) {
	if c.closed.Load() {
		return Result{}, ErrWorkerClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return Result{}, ErrWorkerClosed
	}

	req := request{
		FrameData: f.Data,
		Width:     f.Width,
		Height:    f.Height,
		Meta: requestMeta{
			Seq:       f.Seq,
			Timestamp: f.Timestamp.Format(time.RFC3339Nano),
			TraceID:   f.TraceID,
		},
	}

	type reply struct {
		resp response
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		if err := writeMessage(c.stdin, req); err != nil {
			done <- reply{err: err}
			return
		}
		var resp response
		err := readMessage(c.stdout, &resp)
		done <- reply{resp: resp, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var r reply
	select {
	case r = <-done:
	case <-timer.C:
		// The stream is out of step once a reply is abandoned.
		c.abandon()
		return Result{}, fmt.Errorf("no reply within %s: %w", c.timeout, ErrWorkerClosed)
	case <-ctx.Done():
		c.abandon()
		return Result{}, ctx.Err()
	}

	if r.err != nil {
		if isStreamClosed(r.err) {
			c.abandon()
			return Result{}, fmt.Errorf("%w: %w", ErrWorkerClosed, r.err)
		}
		return Result{}, r.err
	}

	c.requests.Add(1)

	if r.resp.Error != "" {
		return Result{}, fmt.Errorf("classifier worker: %s", r.resp.Error)
	}

	slog.Debug("frame classified",
		"seq", f.Seq,
		"trace_id", f.TraceID,
		"emotion", r.resp.Emotion,
		"total_ms", r.resp.Timing.TotalMS,
	)

	return toResult(r.resp), nil
}

func toResult(resp response) Result {
	label := strings.TrimSpace(resp.Emotion)
	if label == "" {
		return Result{}
	}
	return Result{
		Emotion: emotion.Normalize(label),
		Face:    resp.Face,
	}
}

// Requests returns the number of completed round trips.
func (c *PythonClassifier) Requests() uint64 {
	return c.requests.Load()
}

// Close stops the worker, killing it if it does not exit within 2s.
func (c *PythonClassifier) Close() error {
	c.closed.Store(true)

	var err error
	c.closeOnce.Do(func() {
		if cerr := c.stdin.Close(); cerr != nil && !errors.Is(cerr, io.ErrClosedPipe) {
			err = fmt.Errorf("closing worker stdin: %w", cerr)
		}

		if c.cmd == nil {
			return
		}

		select {
		case <-c.exited:
		case <-time.After(2 * time.Second):
			slog.Warn("classifier worker did not exit, killing", "pid", c.cmd.Process.Pid)
			_ = c.cmd.Process.Kill()
			<-c.exited
		}
	})
	return err
}

func (c *PythonClassifier) abandon() {
	c.closed.Store(true)
	go func() {
		if err := c.Close(); err != nil {
			slog.Debug("closing abandoned classifier worker", "error", err)
		}
	}()
}

// waitProcess reaps the worker so it never lingers as a zombie.
func (c *PythonClassifier) waitProcess(ctx context.Context) {
	defer close(c.exited)

	err := c.cmd.Wait()
	c.closed.Store(true)

	switch {
	case err == nil:
		slog.Info("classifier worker exited")
	case ctx.Err() != nil:
		slog.Debug("classifier worker stopped", "error", err)
	default:
		slog.Error("classifier worker exited unexpectedly", "error", err)
	}
}

// logStderr forwards worker log lines to slog by their level prefix and
// closes ready when the worker announces its model is loaded.
func logStderr(r io.Reader, ready chan<- struct{}) {
	var readyOnce sync.Once
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, readyLine) {
			readyOnce.Do(func() { close(ready) })
		}
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			slog.Error("classifier worker", "line", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			slog.Warn("classifier worker", "line", line)
		default:
			slog.Debug("classifier worker", "line", line)
		}
	}
}

func isStreamClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}
