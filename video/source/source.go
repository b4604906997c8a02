package source

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"depthcam/video/calib"
)

// Capture is one synchronized color and depth pair. It is owned by whoever
// acquired it and must be released exactly once when processing is done.
type Capture struct {
	Color     *Image
	Depth     *Image
	Timestamp time.Time

	release func(*Capture)
	once    sync.Once
}

// NewCapture wraps a pair of images. release, if non-nil, runs once on
// Release while the images are still attached.
func NewCapture(color, depth *Image, ts time.Time, release func(*Capture)) *Capture {
	return &Capture{
		Color:     color,
		Depth:     depth,
		Timestamp: ts,
		release:   release,
	}
}

// Release hands the images back to their owner. After Release the image
// fields are nil. Safe to call more than once.
func (c *Capture) Release() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if c.release != nil {
			c.release(c)
		}
		c.Color = nil
		c.Depth = nil
	})
}

// Device is the camera driver.
type Device interface {
	// Start configures and starts the cameras.
	Start(cfg DeviceConfig) error

	// Calibration returns the factory calibration for the started modes.
	Calibration() (*calib.Calibration, error)

	// GetCapture blocks until the next capture is available or ctx ends.
	// A driver that gives up on its own returns an error wrapping
	// ErrDeviceTimeout.
	GetCapture(ctx context.Context) (*Capture, error)

	// Close stops the cameras and frees driver resources.
	Close() error
}

// FrameSource turns a Device into a stream of validated captures. It does no
// retrying; errors are classified and handed to the caller.
type FrameSource struct {
	dev     Device
	cfg     DeviceConfig
	timeout time.Duration

	timeouts int
}

// NewFrameSource wraps a started device.
func NewFrameSource(dev Device, cfg DeviceConfig) (*FrameSource, error) {
	if dev == nil {
		return nil, errors.New("frame source needs a device")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid device configuration")
	}
	return &FrameSource{
		dev:     dev,
		cfg:     cfg,
		timeout: cfg.CaptureTimeout(),
	}, nil
}

// Acquire blocks for one capture. Errors match ErrDeviceTimeout,
// ErrIncompleteCapture or ErrDeviceError, or are ctx's own error when the
// caller gave up.
func (s *FrameSource) Acquire(ctx context.Context) (*Capture, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.dev.GetCapture(cctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDeviceTimeout) {
			return nil, s.timedOut(err)
		}
		return nil, DeviceError(err)
	}
	if c == nil {
		return nil, DeviceError(errors.New("device returned no capture"))
	}
	s.timeouts = 0

	if s.cfg.SynchronizedImagesOnly && (c.Color == nil || c.Depth == nil) {
		c.Release()
		return nil, errors.WithStack(ErrIncompleteCapture)
	}
	return c, nil
}

func (s *FrameSource) timedOut(err error) error {
	s.timeouts++
	if max := s.cfg.MaxConsecutiveTimeouts; max > 0 && s.timeouts >= max {
		log.Errorf("Device produced no capture for %d consecutive attempts", s.timeouts)
		return DeviceError(errors.Wrapf(err, "%d consecutive timeouts", s.timeouts))
	}
	return DeviceTimeout(err)
}

// Config returns the session's device configuration.
func (s *FrameSource) Config() DeviceConfig {
	return s.cfg
}
