package source

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"depthcam/video/calib"
)

// SyntheticOptions tunes the generated scene.
type SyntheticOptions struct {
	// Clock paces frames. Defaults to the wall clock.
	Clock clock.Clock
	// BaselineMM is the horizontal offset of the color camera from the depth
	// camera. Defaults to 32mm.
	BaselineMM float64
	// PoolSize bounds the captures in flight. Defaults to 4.
	PoolSize int
}

// Synthetic is a Device that renders a moving scene instead of reading a
// sensor. The scene holds near, far and no-data regions so every branch of
// the colorizer shows up on screen.
type Synthetic struct {
	opts SyntheticOptions

	mu      sync.Mutex
	cfg     DeviceConfig
	cal     *calib.Calibration
	color   *ImagePool
	depth   *ImagePool
	ticker  *clock.Ticker
	started time.Time
	frame   uint64
	closed  chan struct{}
}

// NewSynthetic creates a stopped synthetic device.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.BaselineMM == 0 {
		opts.BaselineMM = 32
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	return &Synthetic{opts: opts, closed: make(chan struct{})}
}

func (s *Synthetic) Start(cfg DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return errors.New("synthetic device already started")
	}

	cw, ch := cfg.ColorResolution.Dimensions()
	dw, dh := cfg.DepthMode.Dimensions()
	hfov, vfov := cfg.DepthMode.FieldOfView()
	ext := calib.Identity()
	ext.Translation = [3]float64{-s.opts.BaselineMM, 0, 0}
	s.cal = &calib.Calibration{
		Depth:        calib.FromFieldOfView(dw, dh, hfov, vfov),
		Color:        calib.FromFieldOfView(cw, ch, 90, 59),
		DepthToColor: ext,
	}

	s.cfg = cfg
	s.color = NewImagePool(cfg.ColorFormat, cw, ch, s.opts.PoolSize)
	depthFormat := FormatDepth16
	if !cfg.DepthMode.HasDepth() {
		depthFormat = FormatIR16
	}
	s.depth = NewImagePool(depthFormat, dw, dh, s.opts.PoolSize)
	s.ticker = s.opts.Clock.Ticker(cfg.FramePeriod())
	s.started = s.opts.Clock.Now()

	log.WithFields(log.Fields{
		"color": cfg.ColorResolution,
		"depth": cfg.DepthMode,
		"fps":   cfg.FPS,
	}).Info("Synthetic device started")
	return nil
}

func (s *Synthetic) Calibration() (*calib.Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cal == nil {
		return nil, errors.Wrap(calib.ErrNoCalibration, "device not started")
	}
	return s.cal, nil
}

func (s *Synthetic) GetCapture(ctx context.Context) (*Capture, error) {
	s.mu.Lock()
	ticker, color, depth := s.ticker, s.color, s.depth
	s.mu.Unlock()
	if ticker == nil {
		return nil, DeviceError(errors.New("synthetic device not started"))
	}

	select {
	case <-ticker.C:
	case <-s.closed:
		return nil, DeviceError(errors.New("synthetic device closed"))
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ci, err := color.Get(ctx)
	if err != nil {
		return nil, s.poolError(err)
	}
	di, err := depth.Get(ctx)
	if err != nil {
		color.Put(ci)
		return nil, s.poolError(err)
	}

	s.mu.Lock()
	s.frame++
	n := s.frame
	s.mu.Unlock()

	now := s.opts.Clock.Now()
	ci.SystemTimestamp, di.SystemTimestamp = now, now
	ci.DeviceTimestamp = now.Sub(s.started)
	di.DeviceTimestamp = ci.DeviceTimestamp
	renderColor(ci, n)
	if di.Format == FormatIR16 {
		renderIR(di, n)
	} else {
		renderDepth(di, n, s.cfg.DepthMode)
	}

	return NewCapture(ci, di, now, func(c *Capture) {
		color.Put(c.Color)
		depth.Put(c.Depth)
	}), nil
}

func (s *Synthetic) poolError(err error) error {
	if errors.Is(err, ErrPoolClosed) {
		return DeviceError(err)
	}
	return err
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	var err error
	if s.ticker != nil {
		s.ticker.Stop()
		err = multierr.Combine(
			s.checkReturned(s.color, "color"),
			s.checkReturned(s.depth, "depth"),
		)
		s.color.Close()
		s.depth.Close()
	}
	return err
}

func (s *Synthetic) checkReturned(p *ImagePool, name string) error {
	if n := p.InUse(); n > 0 {
		return errors.Errorf("%d %s images not released", n, name)
	}
	return nil
}

// renderColor draws a gradient whose red channel cycles with the frame.
func renderColor(img *Image, frame uint64) {
	r := uint8(frame * 4)
	for y := 0; y < img.Height; y++ {
		g := uint8(y * 255 / max(img.Height-1, 1))
		row := img.Pix[y*img.Stride:]
		for x := 0; x < img.Width; x++ {
			o := x * 4
			row[o] = uint8(x * 255 / max(img.Width-1, 1))
			row[o+1] = g
			row[o+2] = r
			row[o+3] = 255
		}
	}
}

// renderDepth draws a floor receding from 600mm to 2000mm with a hole that
// sweeps across the frame. Wide modes are masked to their circular field of
// view like the real sensor.
func renderDepth(img *Image, frame uint64, mode DepthMode) {
	w, h := img.Width, img.Height
	hx := int(frame*4) % w
	hy := h / 2
	hr := h / 8
	cx, cy := w/2, h/2
	wide := mode == DepthWFOV2x2Binned || mode == DepthWFOVUnbinned
	for y := 0; y < h; y++ {
		base := 600 + 1400*y/max(h-1, 1)
		for x := 0; x < w; x++ {
			d := uint16(base)
			dx, dy := x-hx, y-hy
			if dx*dx+dy*dy < hr*hr {
				d = 0
			}
			if wide {
				mx, my := x-cx, y-cy
				if mx*mx+my*my > cx*cx {
					d = 0
				}
			}
			img.SetDepth(x, y, d)
		}
	}
}

// renderIR draws diagonal intensity bands that drift with the frame.
func renderIR(img *Image, frame uint64) {
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			img.SetDepth(x, y, uint16((x+y+int(frame%1024))%1024)*64)
		}
	}
}
