package source

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"depthcam/video/calib"
)

func TestDeviceConfigValidate(t *testing.T) {
	test.That(t, DefaultDeviceConfig().Validate(), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		modify func(*DeviceConfig)
	}{
		{"fps", func(c *DeviceConfig) { c.FPS = 60 }},
		{"color format", func(c *DeviceConfig) { c.ColorFormat = FormatDepth16 }},
		{"color off", func(c *DeviceConfig) { c.ColorResolution = ColorOff }},
		{"depth off", func(c *DeviceConfig) { c.DepthMode = DepthOff }},
		{"3072p at 30", func(c *DeviceConfig) { c.ColorResolution = Color3072p }},
		{"wfov unbinned at 30", func(c *DeviceConfig) { c.DepthMode = DepthWFOVUnbinned }},
		{"passive ir synchronized", func(c *DeviceConfig) { c.DepthMode = DepthPassiveIR }},
		{"negative timeout", func(c *DeviceConfig) { c.CaptureTimeoutMs = -1 }},
		{"unknown resolution", func(c *DeviceConfig) { c.ColorResolution = 42 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultDeviceConfig()
			tc.modify(&cfg)
			test.That(t, cfg.Validate(), test.ShouldNotBeNil)
		})
	}

	cfg := DefaultDeviceConfig()
	cfg.FPS = 15
	cfg.DepthMode = DepthWFOVUnbinned
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestDeviceConfigTimeouts(t *testing.T) {
	cfg := DefaultDeviceConfig()
	test.That(t, cfg.FramePeriod(), test.ShouldEqual, time.Second/30)
	test.That(t, cfg.CaptureTimeout(), test.ShouldEqual, 2*time.Second/30)
	cfg.CaptureTimeoutMs = 250
	test.That(t, cfg.CaptureTimeout(), test.ShouldEqual, 250*time.Millisecond)
}

func TestDeviceConfigJSON(t *testing.T) {
	cfg := DefaultDeviceConfig()
	err := json.Unmarshal([]byte(`{"color_resolution":"720P","depth_mode":"nfov_unbinned","fps":15}`), &cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ColorResolution, test.ShouldEqual, Color720p)
	test.That(t, cfg.DepthMode, test.ShouldEqual, DepthNFOVUnbinned)
	test.That(t, cfg.FPS, test.ShouldEqual, 15)
	test.That(t, cfg.ColorFormat, test.ShouldEqual, FormatColorBGRA32)

	b, err := json.Marshal(cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(b), test.ShouldContainSubstring, `"depth_mode":"nfov_unbinned"`)

	err = json.Unmarshal([]byte(`{"depth_mode":"sideways"}`), &cfg)
	test.That(t, err, test.ShouldNotBeNil)
	err = json.Unmarshal([]byte(`{"color_resolution":"8k"}`), &cfg)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDeviceConfigCheckCalibration(t *testing.T) {
	cfg := DefaultDeviceConfig()
	dev := NewSynthetic(SyntheticOptions{Clock: clock.NewMock()})
	test.That(t, dev.Start(cfg), test.ShouldBeNil)
	defer dev.Close()
	cal, err := dev.Calibration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.CheckCalibration(cal), test.ShouldBeNil)

	other := cfg
	other.ColorResolution = Color1080p
	err = other.CheckCalibration(cal)
	test.That(t, errors.Is(err, calib.ErrNoCalibration), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "color calibration is 2560x1440")

	other = cfg
	other.DepthMode = DepthNFOVUnbinned
	err = other.CheckCalibration(cal)
	test.That(t, err.Error(), test.ShouldContainSubstring, "depth calibration is 512x512")

	test.That(t, cfg.CheckCalibration(nil), test.ShouldNotBeNil)
}

func TestDepthModeHasDepth(t *testing.T) {
	test.That(t, DepthWFOV2x2Binned.HasDepth(), test.ShouldBeTrue)
	test.That(t, DepthNFOVUnbinned.HasDepth(), test.ShouldBeTrue)
	test.That(t, DepthPassiveIR.HasDepth(), test.ShouldBeFalse)
	test.That(t, DepthOff.HasDepth(), test.ShouldBeFalse)
}
