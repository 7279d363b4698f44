// Package vision classifies facial emotion in camera frames.
package vision

import (
	"context"
	"errors"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/frame"
)

// ErrWorkerClosed is returned by a classifier whose worker has exited or
// been closed.
var ErrWorkerClosed = errors.New("classifier worker closed")

// Box is a face rectangle in frame pixels.
type Box struct {
	X      int `json:"x" msgpack:"x"`
	Y      int `json:"y" msgpack:"y"`
	Width  int `json:"width" msgpack:"width"`
	Height int `json:"height" msgpack:"height"`
}

// Result is the outcome of classifying one frame.
type Result struct {
	// Emotion is empty when no face was found.
	Emotion emotion.Emotion
	Face    *Box
}

// Found reports whether the frame contained a classified face.
func (r Result) Found() bool {
	return r.Emotion != ""
}

// Classifier detects the dominant emotion in a frame.
type Classifier interface {
	Detect(ctx context.Context, f frame.Frame) (Result, error)
	Close() error
}
