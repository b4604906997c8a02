package video

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"depthcam/util"
	"depthcam/video/calib"
	"depthcam/video/process"
	"depthcam/video/sink"
	"depthcam/video/source"
)

// ErrTaskPanic wraps a panic recovered from a per-frame task. Like a
// transform error it means a bug, so it stops the pipeline.
var ErrTaskPanic = errors.New("frame task panicked")

// State is the pipeline's position in its per-frame cycle.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateProcessing
	StatePublishing
	StateStopped
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateCapturing:  "capturing",
	StateProcessing: "processing",
	StatePublishing: "publishing",
	StateStopped:    "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FrameSource is the pipeline's view of the camera.
type FrameSource interface {
	// Acquire blocks until a capture is available. The caller owns the
	// returned capture and must release it.
	Acquire(ctx context.Context) (*source.Capture, error)
}

// PipelineOptions are optional knobs for NewPipeline.
type PipelineOptions struct {
	// Colorizer settings; the zero value uses the default far threshold.
	Colorizer process.Colorizer
	// RateWindow is how often the frame rate is reported. Defaults to 2s.
	RateWindow time.Duration
	// Clock drives rate measurement and stage timing. Defaults to wall time.
	Clock clock.Clock
	// Materialize turns a BGRA image into a displayable frame. Defaults to
	// sink.Materialize.
	Materialize func(*source.Image) (*image.RGBA, error)
	// OnStateChange is called after every state transition, from the
	// pipeline goroutine. err is set on the transition to StateStopped when
	// the pipeline failed.
	OnStateChange func(from, to State, err error)
}

// Stats is a snapshot of a pipeline session.
type Stats struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Frames    uint64    `json:"frames"`
	Dropped   uint64    `json:"dropped"`
	Timeouts  uint64    `json:"timeouts"`
	FPS       float64   `json:"fps"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// Pipeline captures frames, aligns depth to color, colorizes, and publishes
// the raw and annotated images. One frame is in flight at a time; the
// blocking capture call paces the loop.
type Pipeline struct {
	id          string
	src         FrameSource
	reprojector *process.Reprojector
	colorizer   process.Colorizer
	materialize func(*source.Image) (*image.RGBA, error)
	presenter   sink.Presenter
	clock       clock.Clock
	window      time.Duration
	onState     func(from, to State, err error)
	log         *log.Entry

	// Scratch buffers at the color resolution. Only the annotate task
	// touches them while a frame is in flight.
	transformed *source.Image
	output      *source.Image

	mu        sync.Mutex
	state     State
	started   bool
	cancel    context.CancelFunc
	startedAt time.Time
	fps       float64

	frames   atomic.Uint64
	dropped  atomic.Uint64
	timeouts atomic.Uint64

	inflight sync.WaitGroup
	stopped  *util.Event
}

// NewPipeline builds a pipeline for a session. The calibration decides the
// color resolution of the scratch buffers.
func NewPipeline(src FrameSource, cal *calib.Calibration, presenter sink.Presenter, opts PipelineOptions) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New("pipeline needs a frame source")
	}
	if presenter == nil {
		presenter = sink.Discard{}
	}
	reprojector, err := process.NewReprojector(cal)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = process.DefaultRateWindow
	}
	if opts.Materialize == nil {
		opts.Materialize = sink.Materialize
	}

	id := uuid.NewString()
	return &Pipeline{
		id:          id,
		src:         src,
		reprojector: reprojector,
		colorizer:   opts.Colorizer,
		materialize: opts.Materialize,
		presenter:   presenter,
		clock:       opts.Clock,
		window:      opts.RateWindow,
		onState:     opts.OnStateChange,
		log:         log.WithField("session", id),
		transformed: source.NewImage(source.FormatDepth16, cal.Color.Width, cal.Color.Height),
		output:      source.NewImage(source.FormatColorBGRA32, cal.Color.Width, cal.Color.Height),
		stopped:     util.NewEvent(),
	}, nil
}

// ID identifies the session in logs and status output.
func (p *Pipeline) ID() string {
	return p.id
}

// Run streams frames until ctx is cancelled, Stop is called, or a fatal error
// occurs. It returns nil after a requested shutdown and the fatal error
// otherwise. Run may only be called once.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pipeline already started")
	}
	p.started = true
	if p.state == StateStopped {
		// Stopped before it ever ran.
		p.mu.Unlock()
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.startedAt = p.clock.Now()
	p.mu.Unlock()

	defer func() {
		p.cancel()
		p.inflight.Wait()
		p.stop(err)
	}()

	p.log.Info("Pipeline started")
	rate := process.NewRateCounter(p.clock, p.window)
	for {
		if ctx.Err() != nil {
			return nil
		}

		p.setState(StateCapturing, nil)
		start := p.clock.Now()
		c, err := p.acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := p.captureFailed(err); err != nil {
				return err
			}
			continue
		}
		if ctx.Err() != nil {
			c.Release()
			return nil
		}
		observe("capture", p.clock.Since(start))

		raw, annotated, err := p.processFrame(c)
		if err != nil {
			if isFatal(err) {
				p.log.Errorf("Frame processing failed: %+v", err)
				return err
			}
			p.drop(dropTask, err)
			continue
		}

		p.setState(StatePublishing, nil)
		start = p.clock.Now()
		p.presenter.Publish(raw, annotated)
		observe("publish", p.clock.Since(start))
		p.frames.Add(1)
		framesPublished.Inc()

		if fps, ok := rate.Tick(); ok {
			p.mu.Lock()
			p.fps = fps
			p.mu.Unlock()
			frameRate.Set(fps)
			p.presenter.ReportRate(fps)
			p.log.Debugf("%.2f FPS", fps)
		}
	}
}

type acquired struct {
	capture *source.Capture
	err     error
}

// acquire runs the blocking capture call on its own goroutine so the
// pipeline can give up on cancellation. A capture that still arrives after
// that is released.
func (p *Pipeline) acquire(ctx context.Context) (*source.Capture, error) {
	res := make(chan acquired, 1)
	p.inflight.Add(1)
	go func() {
		c, err := p.src.Acquire(ctx)
		res <- acquired{capture: c, err: err}
	}()

	select {
	case r := <-res:
		p.inflight.Done()
		return r.capture, r.err
	case <-ctx.Done():
		go func() {
			defer p.inflight.Done()
			if r := <-res; r.capture != nil {
				r.capture.Release()
			}
		}()
		return nil, ctx.Err()
	}
}

// captureFailed decides what a failed capture means for the session. It
// returns the error to stop with, or nil to carry on with the next frame.
func (p *Pipeline) captureFailed(err error) error {
	switch {
	case errors.Is(err, source.ErrDeviceTimeout):
		p.timeouts.Add(1)
		p.drop(dropTimeout, err)
		return nil
	case errors.Is(err, source.ErrIncompleteCapture):
		p.drop(dropIncomplete, err)
		return nil
	case source.IsFatal(err):
		p.log.Errorf("Device failed: %v", err)
		return err
	}
	p.log.Errorf("Unclassified capture failure: %v", err)
	return source.DeviceError(err)
}

func (p *Pipeline) drop(reason string, err error) {
	p.dropped.Add(1)
	framesDropped.WithLabelValues(reason).Inc()
	p.log.WithField("reason", reason).Warnf("Dropped frame: %v", err)
}

// processFrame builds the raw and annotated frames concurrently. The capture
// is released before it returns, whatever happens.
func (p *Pipeline) processFrame(c *source.Capture) (raw, annotated *image.RGBA, err error) {
	defer c.Release()
	p.setState(StateProcessing, nil)

	if c.Color == nil || c.Depth == nil {
		return nil, nil, errors.WithStack(source.ErrIncompleteCapture)
	}

	var g errgroup.Group
	g.Go(guard("raw", func() error {
		start := p.clock.Now()
		img, err := p.materialize(c.Color)
		if err != nil {
			return errors.Wrap(err, "raw frame")
		}
		observe("raw", p.clock.Since(start))
		raw = img
		return nil
	}))
	g.Go(guard("annotate", func() error {
		start := p.clock.Now()
		if err := p.reprojector.Reproject(c.Depth, p.transformed); err != nil {
			return err
		}
		observe("reproject", p.clock.Since(start))

		start = p.clock.Now()
		if err := p.colorizer.Colorize(c.Color, p.transformed, p.output); err != nil {
			return err
		}
		img, err := p.materialize(p.output)
		if err != nil {
			return errors.Wrap(err, "annotated frame")
		}
		observe("colorize", p.clock.Since(start))
		annotated = img
		return nil
	}))
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return raw, annotated, nil
}

// guard turns a panic in a frame task into an error.
func guard(name string, f func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Wrapf(ErrTaskPanic, "%s: %v", name, r)
			}
		}()
		return f()
	}
}

func isFatal(err error) bool {
	return source.IsFatal(err) ||
		errors.Is(err, process.ErrTransform) ||
		errors.Is(err, ErrTaskPanic)
}

func observe(stage string, d time.Duration) {
	stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Pipeline) setState(to State, err error) {
	p.mu.Lock()
	from := p.state
	if from == to || from == StateStopped {
		p.mu.Unlock()
		return
	}
	p.state = to
	p.mu.Unlock()

	pipelineState.WithLabelValues(from.String()).Set(0)
	pipelineState.WithLabelValues(to.String()).Set(1)
	if p.onState != nil {
		p.onState(from, to, err)
	}
}

func (p *Pipeline) stop(err error) {
	p.setState(StateStopped, err)
	if err != nil {
		p.log.Errorf("Pipeline stopped: %v", err)
	} else {
		p.log.Info("Pipeline stopped")
	}
	p.stopped.Notify(err)
}

// Stop asks the pipeline to finish. It does not wait; use Wait or Done.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel, started := p.cancel, p.started
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		return
	}
	if !started {
		p.stop(nil)
	}
}

// Done is closed once the pipeline has stopped and released everything.
func (p *Pipeline) Done() <-chan struct{} {
	return p.stopped.Done()
}

// Wait blocks until the pipeline stops and returns the error it stopped with.
func (p *Pipeline) Wait() error {
	return p.stopped.Wait()
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the session counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	st := Stats{
		SessionID: p.id,
		State:     p.state.String(),
		FPS:       p.fps,
		StartedAt: p.startedAt,
	}
	p.mu.Unlock()
	st.Frames = p.frames.Load()
	st.Dropped = p.dropped.Load()
	st.Timeouts = p.timeouts.Load()
	if err := p.stopped.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}
