// Package camera captures webcam frames with GStreamer and keeps the most
// recent one as a JPEG.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/justestif/go-spotify-mood-player/internal/frame"
)

// Source selects the pipeline head.
const (
	SourceV4L2 = "v4l2"
	SourceTest = "test"
)

// ErrAlreadyOpen is returned by Open on a running camera.
var ErrAlreadyOpen = errors.New("camera already open")

var initOnce sync.Once

// Config describes the capture device and output format.
type Config struct {
	Index  int
	Source string
	Width  int
	Height int
	FPS    int
}

// Camera is a webcam that can be opened and closed repeatedly.
type Camera struct {
	cfg  Config
	slot frame.Slot

	mu       sync.Mutex
	pipeline *gst.Pipeline
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	open     atomic.Bool

	frames  atomic.Uint64
	started time.Time
}

// New creates a closed camera.
func New(cfg Config) *Camera {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 15
	}
	if cfg.Source == "" {
		cfg.Source = SourceV4L2
	}
	return &Camera{cfg: cfg}
}

// pipelineString builds the gst-launch description for cfg.
func pipelineString(cfg Config) string {
	head := fmt.Sprintf("v4l2src device=/dev/video%d", cfg.Index)
	if cfg.Source == SourceTest {
		head = "videotestsrc is-live=true pattern=ball"
	}

	return fmt.Sprintf(
		"%s ! videoconvert ! videoscale ! videorate ! "+
			"video/x-raw,width=%d,height=%d,framerate=%d/1 ! "+
			"jpegenc quality=85 ! appsink name=sink sync=false max-buffers=1 drop=true",
		head, cfg.Width, cfg.Height, cfg.FPS,
	)
}

// Open starts capture. Frames become available through Latest once the
// pipeline reaches PLAYING.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pipeline != nil {
		return ErrAlreadyOpen
	}

	initOnce.Do(func() { gst.Init(nil) })

	desc := pipelineString(c.cfg)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return fmt.Errorf("creating pipeline %q: %w", desc, err)
	}

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return fmt.Errorf("finding appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	c.pipeline = pipeline
	c.cancel = cancel
	c.started = time.Now()
	c.open.Store(true)

	c.wg.Add(1)
	go c.monitor(monitorCtx, pipeline)

	slog.Info("camera: opened",
		"source", c.cfg.Source,
		"index", c.cfg.Index,
		"resolution", fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height),
		"fps", c.cfg.FPS,
	)
	return nil
}

// onNewSample copies the JPEG out of the appsink buffer into the slot.
func (c *Camera) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("camera: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("camera: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}

	// GStreamer reuses the buffer.
	jpeg := make([]byte, len(data))
	copy(jpeg, data)
	buffer.Unmap()

	seq := c.slot.Publish(frame.Frame{
		Data:      jpeg,
		Width:     c.cfg.Width,
		Height:    c.cfg.Height,
		Timestamp: time.Now(),
		TraceID:   uuid.NewString(),
	})
	c.frames.Add(1)

	if seq == 1 {
		slog.Debug("camera: first frame", "size_bytes", len(jpeg))
	}
	return gst.FlowOK
}

// monitor watches the bus and closes the camera on error or end of stream.
func (c *Camera) monitor(ctx context.Context, pipeline *gst.Pipeline) {
	defer c.wg.Done()

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("camera: end of stream", "uptime", time.Since(c.started))
			c.open.Store(false)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("camera: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"frames", c.frames.Load(),
			)
			c.open.Store(false)
			return
		}
	}
}

// Latest returns the most recent frame while the camera is open.
func (c *Camera) Latest() (frame.Frame, bool) {
	if !c.open.Load() {
		return frame.Frame{}, false
	}
	return c.slot.Latest()
}

// IsOpen reports whether the pipeline is running.
func (c *Camera) IsOpen() bool {
	return c.open.Load()
}

// Close stops the pipeline and drops the last frame. Closing a closed
// camera is a no-op.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pipeline == nil {
		return nil
	}

	c.open.Store(false)
	c.cancel()
	c.wg.Wait()

	err := c.pipeline.SetState(gst.StateNull)
	c.pipeline = nil
	c.cancel = nil
	c.slot.Reset()

	slog.Info("camera: closed", "frames", c.frames.Load(), "uptime", time.Since(c.started))

	if err != nil {
		return fmt.Errorf("stopping pipeline: %w", err)
	}
	return nil
}
