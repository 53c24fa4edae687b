// Package config loads voxture settings from YAML, .env files and the
// environment, in that order of increasing precedence. Command-line flags
// are applied on top by each command.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultEndpoint = "http://127.0.0.1:5000/sign"
	DefaultDevice   = "0"
	DefaultWidth    = 640
	DefaultHeight   = 480
	DefaultQuality  = 85
	DefaultInterval = 600 * time.Millisecond
	DefaultPort     = "8080"
	DefaultOrdering = "latest-capture"
)

// Environment variable names.
const (
	EnvEndpoint = "VOXTURE_ENDPOINT"
	EnvCamera   = "VOXTURE_CAMERA"
	EnvPort     = "VOXTURE_PORT"
	EnvLogLevel = "VOXTURE_LOG_LEVEL"
	EnvInterval = "VOXTURE_INTERVAL"
	EnvMirror   = "VOXTURE_MIRROR"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Endpoint string       `yaml:"endpoint"`
	Camera   CameraConfig `yaml:"camera"`
	Loop     LoopConfig   `yaml:"loop"`
	Server   ServerConfig `yaml:"server"`
}

// CameraConfig selects and shapes the capture device.
type CameraConfig struct {
	Device  string `yaml:"device"` // index ("0") or stream URL
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Quality int    `yaml:"quality"` // JPEG quality 1-100
	Mirror  bool   `yaml:"mirror"`
}

// LoopConfig controls sampling cadence.
type LoopConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // 0 = one interval
	Ordering       string        `yaml:"ordering"`        // "latest-capture" or "arrival"
	AutoStart      bool          `yaml:"auto_start"`
}

// ServerConfig configures the dashboard.
type ServerConfig struct {
	Port     string `yaml:"port"`
	Disabled bool   `yaml:"disabled"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Endpoint: DefaultEndpoint,
		Camera: CameraConfig{
			Device:  DefaultDevice,
			Width:   DefaultWidth,
			Height:  DefaultHeight,
			Quality: DefaultQuality,
		},
		Loop: LoopConfig{
			Interval: DefaultInterval,
			Ordering: DefaultOrdering,
		},
		Server: ServerConfig{Port: DefaultPort},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Decode is Load without validation, for callers that apply further
// overrides (command-line flags) and validate afterwards.
func Decode(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decodeReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults, applies the
// environment and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decodeReader(r)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; existing variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from VOXTURE_* environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.Endpoint, EnvEndpoint)
	setString(&c.Camera.Device, EnvCamera)
	setString(&c.Server.Port, EnvPort)
	setString(&c.LogLevel, EnvLogLevel)
	if err := setDuration(&c.Loop.Interval, EnvInterval); err != nil {
		return err
	}
	return setBool(&c.Camera.Mirror, EnvMirror)
}

// Validate checks that c is coherent. All problems are returned joined.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Endpoint)
	switch {
	case c.Endpoint == "":
		errs = append(errs, errors.New("endpoint is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("endpoint %q: %w", c.Endpoint, err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("endpoint %q must be http or https", c.Endpoint))
	}

	if c.Camera.Device == "" {
		errs = append(errs, errors.New("camera.device is required"))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera resolution %dx%d is invalid", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		errs = append(errs, fmt.Errorf("camera.quality %d must be between 1 and 100", c.Camera.Quality))
	}

	if c.Loop.Interval <= 0 {
		errs = append(errs, fmt.Errorf("loop.interval %s must be positive", c.Loop.Interval))
	}
	if c.Loop.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("loop.request_timeout %s must not be negative", c.Loop.RequestTimeout))
	}
	switch c.Loop.Ordering {
	case "latest-capture", "arrival":
	default:
		errs = append(errs, fmt.Errorf("loop.ordering %q must be latest-capture or arrival", c.Loop.Ordering))
	}

	if !c.Server.Disabled {
		if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("server.port %q is invalid", c.Server.Port))
		}
	}

	return errors.Join(errs...)
}
