package config

import (
	"context"
	"encoding/json"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Listener is called with the previous and the newly loaded configuration.
type Listener func(old, new *Config)

var (
	gLock      sync.RWMutex
	gConfig    *Config
	gListeners []Listener
)

func configFromFile(path string) (*Config, error) {
	config := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p := json.NewDecoder(f)
	p.DisallowUnknownFields()
	if err := p.Decode(config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration in %s", path)
	}
	log.Infof("Loaded configuration: %v", spew.Sdump(config))
	return config, nil
}

// Get returns the current configuration, or the defaults if none was loaded.
func Get() *Config {
	gLock.RLock()
	defer gLock.RUnlock()
	if gConfig == nil {
		return Default()
	}
	return gConfig
}

// Subscribe registers l to be called on every successful reload.
func Subscribe(l Listener) {
	gLock.Lock()
	defer gLock.Unlock()
	gListeners = append(gListeners, l)
}

func set(config *Config) {
	gLock.Lock()
	old := gConfig
	gConfig = config
	listeners := append([]Listener(nil), gListeners...)
	gLock.Unlock()

	if old != nil && !reflect.DeepEqual(old.Device, config.Device) {
		log.Warnf("Device configuration changed; restart to apply it")
	}
	for _, l := range listeners {
		l(old, config)
	}
}

func waitForChange(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-watcher.Errors:
		return err
	case <-watcher.Events:
	}
	// Editors often write in several steps; let them finish.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second / 10):
	}
	return ctx.Err()
}

// Load reads the configuration at path and keeps reloading it whenever the
// file changes, until ctx is done.
func Load(ctx context.Context, path string) (*Config, error) {
	config, err := configFromFile(path)
	if err != nil {
		return nil, err
	}
	set(config)
	go func() {
		for ctx.Err() == nil {
			if err := waitForChange(ctx, path); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("Error waiting for file change: %v", err)
				// The file may be mid-replace; don't spin.
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			config, err := configFromFile(path)
			if err != nil {
				log.Errorf("Failed to load new config: %v", err)
				continue
			}
			set(config)
		}
	}()
	return config, nil
}
