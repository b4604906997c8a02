package config

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"depthcam/video/source"
)

type Config struct {
	// Device settings are read once at session start. Changing them in the
	// file takes effect on restart.
	Device source.DeviceConfig `json:"device"`

	// If set, calibration is read from this JSON file instead of the device.
	CalibrationPath string `json:"calibration_path"`

	// Depth in millimeters beyond which pixels are marked far.
	FarThresholdMM int `json:"far_threshold_mm"`

	// Length of the frame rate measurement window.
	RateWindowSec float64 `json:"rate_window_sec"`

	Port   int  `json:"port"`
	Window bool `json:"window"`

	// Upper bound on frames encoded for MJPEG viewers. Zero disables the cap.
	// Applied live.
	MaxStreamFPS int `json:"max_stream_fps"`

	// One of logrus' level names. Applied live.
	LogLevel string `json:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Device:         source.DefaultDeviceConfig(),
		FarThresholdMM: 1500,
		RateWindowSec:  2,
		Port:           8080,
		MaxStreamFPS:   15,
		LogLevel:       "info",
	}
}

func (c *Config) Validate() error {
	if err := c.Device.Validate(); err != nil {
		return errors.Wrap(err, "device")
	}
	if c.FarThresholdMM <= 0 || c.FarThresholdMM > 65535 {
		return errors.Errorf("far_threshold_mm %d out of range", c.FarThresholdMM)
	}
	if c.RateWindowSec <= 0 {
		return errors.Errorf("rate_window_sec must be positive, got %v", c.RateWindowSec)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.MaxStreamFPS < 0 {
		return errors.Errorf("max_stream_fps must not be negative, got %d", c.MaxStreamFPS)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}
