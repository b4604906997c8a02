package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"depthcam/video/calib"
)

// ColorResolution selects the color camera mode.
type ColorResolution int

const (
	ColorOff ColorResolution = iota
	Color720p
	Color1080p
	Color1440p
	Color1536p
	Color2160p
	Color3072p
)

var colorResolutionNames = map[ColorResolution]string{
	ColorOff:   "off",
	Color720p:  "720p",
	Color1080p: "1080p",
	Color1440p: "1440p",
	Color1536p: "1536p",
	Color2160p: "2160p",
	Color3072p: "3072p",
}

func (r ColorResolution) String() string {
	if s, ok := colorResolutionNames[r]; ok {
		return s
	}
	return fmt.Sprintf("ColorResolution(%d)", int(r))
}

// Dimensions returns the color image size for the resolution.
func (r ColorResolution) Dimensions() (width, height int) {
	switch r {
	case Color720p:
		return 1280, 720
	case Color1080p:
		return 1920, 1080
	case Color1440p:
		return 2560, 1440
	case Color1536p:
		return 2048, 1536
	case Color2160p:
		return 3840, 2160
	case Color3072p:
		return 4096, 3072
	}
	return 0, 0
}

func (r ColorResolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ColorResolution) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for k, v := range colorResolutionNames {
		if v == s {
			*r = k
			return nil
		}
	}
	return errors.Errorf("unknown color resolution %q", string(b))
}

// DepthMode selects the depth camera mode.
type DepthMode int

const (
	DepthOff DepthMode = iota
	DepthNFOV2x2Binned
	DepthNFOVUnbinned
	DepthWFOV2x2Binned
	DepthWFOVUnbinned
	DepthPassiveIR
)

var depthModeNames = map[DepthMode]string{
	DepthOff:           "off",
	DepthNFOV2x2Binned: "nfov_2x2binned",
	DepthNFOVUnbinned:  "nfov_unbinned",
	DepthWFOV2x2Binned: "wfov_2x2binned",
	DepthWFOVUnbinned:  "wfov_unbinned",
	DepthPassiveIR:     "passive_ir",
}

func (m DepthMode) String() string {
	if s, ok := depthModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("DepthMode(%d)", int(m))
}

// Dimensions returns the depth image size for the mode.
func (m DepthMode) Dimensions() (width, height int) {
	switch m {
	case DepthNFOV2x2Binned:
		return 320, 288
	case DepthNFOVUnbinned:
		return 640, 576
	case DepthWFOV2x2Binned:
		return 512, 512
	case DepthWFOVUnbinned, DepthPassiveIR:
		return 1024, 1024
	}
	return 0, 0
}

// FieldOfView returns the nominal horizontal and vertical field of view of
// the depth mode, in degrees.
func (m DepthMode) FieldOfView() (h, v float64) {
	switch m {
	case DepthNFOV2x2Binned, DepthNFOVUnbinned:
		return 75, 65
	case DepthWFOV2x2Binned, DepthWFOVUnbinned, DepthPassiveIR:
		return 120, 120
	}
	return 0, 0
}

// HasDepth reports whether the mode produces depth images. Passive IR
// produces IR16 intensity instead.
func (m DepthMode) HasDepth() bool {
	w, _ := m.Dimensions()
	return w > 0 && m != DepthPassiveIR
}

func (m DepthMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *DepthMode) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for k, v := range depthModeNames {
		if v == s {
			*m = k
			return nil
		}
	}
	return errors.Errorf("unknown depth mode %q", string(b))
}

// DeviceConfig is supplied once when the cameras start and is immutable for
// the session.
type DeviceConfig struct {
	ColorFormat     Format          `json:"-"`
	ColorResolution ColorResolution `json:"color_resolution"`
	DepthMode       DepthMode       `json:"depth_mode"`
	FPS             int             `json:"fps"`

	// SynchronizedImagesOnly requires every capture to carry both a color and
	// a depth image.
	SynchronizedImagesOnly bool `json:"synchronized_images_only"`

	// CaptureTimeoutMs bounds a single capture call. Zero uses twice the frame
	// period.
	CaptureTimeoutMs int `json:"capture_timeout_ms"`

	// MaxConsecutiveTimeouts escalates repeated timeouts to a device error.
	// Zero never escalates.
	MaxConsecutiveTimeouts int `json:"max_consecutive_timeouts"`
}

// DefaultDeviceConfig matches the viewer's usual session: BGRA 1440p color,
// binned wide depth, 30 fps, synchronized pairs only.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		ColorFormat:            FormatColorBGRA32,
		ColorResolution:        Color1440p,
		DepthMode:              DepthWFOV2x2Binned,
		FPS:                    30,
		SynchronizedImagesOnly: true,
	}
}

// Validate checks the combination of modes the device supports.
func (c DeviceConfig) Validate() error {
	switch c.FPS {
	case 5, 15, 30:
	default:
		return errors.Errorf("unsupported fps %d", c.FPS)
	}
	if c.ColorFormat != FormatColorBGRA32 {
		return errors.Errorf("unsupported color format %v", c.ColorFormat)
	}
	if c.ColorResolution == ColorOff || c.DepthMode == DepthOff {
		return errors.New("both color and depth cameras must be enabled")
	}
	if w, _ := c.ColorResolution.Dimensions(); w == 0 {
		return errors.Errorf("unknown color resolution %v", c.ColorResolution)
	}
	if w, _ := c.DepthMode.Dimensions(); w == 0 {
		return errors.Errorf("unknown depth mode %v", c.DepthMode)
	}
	if c.FPS == 30 && c.ColorResolution == Color3072p {
		return errors.New("3072p color does not support 30 fps")
	}
	if c.FPS == 30 && c.DepthMode == DepthWFOVUnbinned {
		return errors.New("wfov unbinned depth does not support 30 fps")
	}
	if c.SynchronizedImagesOnly && c.DepthMode == DepthPassiveIR {
		return errors.New("passive IR produces no depth to synchronize")
	}
	if c.CaptureTimeoutMs < 0 || c.MaxConsecutiveTimeouts < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// FramePeriod is the nominal time between captures.
func (c DeviceConfig) FramePeriod() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.FPS)
}

// CaptureTimeout returns the configured capture timeout or its default.
func (c DeviceConfig) CaptureTimeout() time.Duration {
	if c.CaptureTimeoutMs > 0 {
		return time.Duration(c.CaptureTimeoutMs) * time.Millisecond
	}
	return 2 * c.FramePeriod()
}

// CheckCalibration returns an error unless cal describes cameras running at
// this configuration's resolutions.
func (c DeviceConfig) CheckCalibration(cal *calib.Calibration) error {
	if err := cal.CheckValid(); err != nil {
		return err
	}
	if w, h := c.ColorResolution.Dimensions(); cal.Color.Width != w || cal.Color.Height != h {
		return errors.Wrapf(calib.ErrNoCalibration, "color calibration is %dx%d, %v is %dx%d",
			cal.Color.Width, cal.Color.Height, c.ColorResolution, w, h)
	}
	if w, h := c.DepthMode.Dimensions(); cal.Depth.Width != w || cal.Depth.Height != h {
		return errors.Wrapf(calib.ErrNoCalibration, "depth calibration is %dx%d, %v is %dx%d",
			cal.Depth.Width, cal.Depth.Height, c.DepthMode, w, h)
	}
	return nil
}
