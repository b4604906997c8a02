package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"go.viam.com/test"

	"depthcam/video/source"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	test.That(t, os.WriteFile(path, []byte(body), 0o644), test.ShouldBeNil)
}

func TestDefault(t *testing.T) {
	c := Default()
	test.That(t, c.Validate(), test.ShouldBeNil)
	test.That(t, c.Device, test.ShouldResemble, source.DefaultDeviceConfig())
	test.That(t, c.FarThresholdMM, test.ShouldEqual, 1500)
	test.That(t, c.Level(), test.ShouldEqual, log.InfoLevel)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{"device", func(c *Config) { c.Device.FPS = 24 }},
		{"far threshold", func(c *Config) { c.FarThresholdMM = 0 }},
		{"rate window", func(c *Config) { c.RateWindowSec = -1 }},
		{"port", func(c *Config) { c.Port = 70000 }},
		{"stream fps", func(c *Config) { c.MaxStreamFPS = -5 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(c)
			test.That(t, c.Validate(), test.ShouldNotBeNil)
		})
	}
}

func TestConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{
		"device": {"color_resolution": "720p", "depth_mode": "nfov_unbinned", "fps": 15},
		"far_threshold_mm": 2500,
		"log_level": "debug"
	}`)

	c, err := configFromFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Device.ColorResolution, test.ShouldEqual, source.Color720p)
	test.That(t, c.Device.DepthMode, test.ShouldEqual, source.DepthNFOVUnbinned)
	test.That(t, c.Device.ColorFormat, test.ShouldEqual, source.FormatColorBGRA32)
	test.That(t, c.Device.SynchronizedImagesOnly, test.ShouldBeTrue)
	test.That(t, c.FarThresholdMM, test.ShouldEqual, 2500)
	test.That(t, c.Port, test.ShouldEqual, 8080)
	test.That(t, c.Level(), test.ShouldEqual, log.DebugLevel)

	writeConfig(t, path, `{"colour": "red"}`)
	_, err = configFromFile(path)
	test.That(t, err, test.ShouldNotBeNil)

	writeConfig(t, path, `{"device": {"fps": 60}}`)
	_, err = configFromFile(path)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid configuration")

	_, err = configFromFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"max_stream_fps": 10}`)

	changes := make(chan *Config, 8)
	Subscribe(func(old, new *Config) { changes <- new })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Load(ctx, path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.MaxStreamFPS, test.ShouldEqual, 10)
	test.That(t, Get(), test.ShouldEqual, c)
	test.That(t, (<-changes).MaxStreamFPS, test.ShouldEqual, 10)

	// Give the watcher a moment to start.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, `{"max_stream_fps": 5}`)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case n := <-changes:
			if n.MaxStreamFPS == 5 {
				test.That(t, Get().MaxStreamFPS, test.ShouldEqual, 5)
				return
			}
		case <-timeout:
			t.Fatal("config change not picked up")
		}
	}
}
