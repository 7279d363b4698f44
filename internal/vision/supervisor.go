package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/justestif/go-spotify-mood-player/internal/frame"
)

// StartFunc starts a classifier worker. ctx bounds the worker's lifetime.
type StartFunc func(ctx context.Context) (Classifier, error)

// Supervisor keeps a classifier worker available. A worker that closes,
// whether it crashed or was abandoned after a timeout, is replaced on the
// next Detect.
type Supervisor struct {
	ctx   context.Context
	start StartFunc

	mu       sync.Mutex
	current  Classifier
	closed   bool
	restarts int
}

// Supervise starts the first worker and returns a Supervisor over it.
func Supervise(ctx context.Context, start StartFunc) (*Supervisor, error) {
	c, err := start(ctx)
	if err != nil {
		return nil, err
	}
	return &Supervisor{ctx: ctx, start: start, current: c}, nil
}

// Detect classifies f with the current worker, starting a new one first
// if the previous worker closed.
func (s *Supervisor) Detect(ctx context.Context, f frame.Frame) (Result, error) {
	c, err := s.worker()
	if err != nil {
		return Result{}, err
	}

	res, err := c.Detect(ctx, f)
	if errors.Is(err, ErrWorkerClosed) {
		s.drop(c)
	}
	return res, err
}

func (s *Supervisor) worker() (Classifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrWorkerClosed
	}
	if s.current != nil {
		return s.current, nil
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.start(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("restarting classifier worker: %w", err)
	}
	s.current = c
	s.restarts++
	slog.Info("classifier worker restarted", "restarts", s.restarts)
	return c, nil
}

// drop forgets c so the next Detect starts a replacement.
func (s *Supervisor) drop(c Classifier) {
	s.mu.Lock()
	if s.current != c {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.mu.Unlock()

	if err := c.Close(); err != nil {
		slog.Debug("closing dead classifier worker", "error", err)
	}
}

// Restarts returns how many replacement workers were started.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Close stops the current worker. Detect fails with ErrWorkerClosed after.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	c := s.current
	s.current = nil
	s.closed = true
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}
