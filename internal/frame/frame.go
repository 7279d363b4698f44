// Package frame holds captured webcam frames.
package frame

import (
	"sync"
	"time"
)

// Frame is one JPEG-encoded camera image.
type Frame struct {
	// Data MUST NOT be modified after Publish (shared by reference).
	Data []byte

	Width  int
	Height int

	// Timestamp when the frame was captured.
	Timestamp time.Time

	// Seq is assigned by the Slot on Publish and increases monotonically.
	Seq uint64

	// TraceID follows the frame through classification logs.
	TraceID string
}

// Slot keeps only the most recent frame. Readers never block the writer.
type Slot struct {
	mu     sync.RWMutex
	latest Frame
	seq    uint64
	ok     bool
}

// Publish replaces the current frame and returns its sequence number.
func (s *Slot) Publish(f Frame) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	f.Seq = s.seq
	s.latest = f
	s.ok = true
	return f.Seq
}

// Latest returns the most recent frame, or false when none was published
// since the last Reset.
func (s *Slot) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ok
}

// Reset drops the current frame, typically when the camera closes.
func (s *Slot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = Frame{}
	s.ok = false
}
