// Package app wires the capture device, recognition client, loop
// controller and dashboard into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/voxture/internal/config"
	"github.com/teslashibe/voxture/internal/observe"
	"github.com/teslashibe/voxture/pkg/camera"
	"github.com/teslashibe/voxture/pkg/loop"
	"github.com/teslashibe/voxture/pkg/recognition"
	"github.com/teslashibe/voxture/pkg/web"
)

// Version is reported in telemetry.
var Version = "dev"

// App owns every component and their lifecycle.
type App struct {
	config *config.Config
	device camera.Device
	logger *slog.Logger

	provider   *observe.Provider
	camera     *camera.Manager
	recognizer *recognition.Client
	loop       *loop.Controller
	web        *web.Server
}

// New validates cfg. device is the capture backend to open on start.
func New(cfg *config.Config, device camera.Device, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if device == nil {
		return nil, errors.New("app: capture device is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, device: device, logger: logger}, nil
}

// Init builds the components. Call it after New and before Run.
func (a *App) Init(ctx context.Context) error {
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	a.provider = provider

	metrics, err := observe.NewMetrics(provider.MeterProvider())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	ordering, err := loop.ParseOrdering(a.config.Loop.Ordering)
	if err != nil {
		return err
	}
	loopCfg := loop.Config{
		Interval:       a.config.Loop.Interval,
		RequestTimeout: a.config.Loop.RequestTimeout,
		Ordering:       ordering,
	}

	timeout := loopCfg.RequestTimeout
	if timeout <= 0 {
		timeout = loopCfg.Interval
	}
	a.recognizer, err = recognition.NewClient(
		recognition.WithEndpoint(a.config.Endpoint),
		recognition.WithTimeout(timeout),
		recognition.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("recognition client: %w", err)
	}
	if err := a.recognizer.Health(ctx); err != nil {
		a.logger.Warn("recognition endpoint not reachable yet", "endpoint", a.recognizer.Endpoint(), "error", err)
	}

	camCfg := CameraConfig(a.config.Camera)
	if problems := camCfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("camera config: %v", problems)
	}
	a.camera = camera.NewManager(a.device, camCfg, a.logger)
	a.camera.OnConfigChange = func(cfg camera.Config) error {
		a.logger.Info("camera config updated, applies on next start",
			"device", cfg.Device, "width", cfg.Width, "height", cfg.Height)
		return nil
	}

	a.loop, err = loop.New(loopCfg, a.camera, a.recognizer,
		loop.WithLogger(a.logger),
		loop.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	if !a.config.Server.Disabled {
		a.web = web.NewServer(a.loop, web.Options{
			Addr:    net.JoinHostPort("", a.config.Server.Port),
			Camera:  a.camera,
			Metrics: provider.Handler(),
			Logger:  a.logger,
		})
	}
	return nil
}

// Run serves the dashboard and, if configured, starts the loop. It blocks
// until ctx is cancelled or the dashboard fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.web != nil {
		g.Go(func() error {
			return a.web.ListenAndServe(ctx)
		})
		a.logger.Info("dashboard", "url", "http://localhost:"+a.config.Server.Port)
	}

	if a.config.Loop.AutoStart {
		if err := a.loop.Start(ctx); err != nil {
			// A missing camera is reported, not fatal: the dashboard can retry.
			a.logger.Error("auto start failed", "error", err)
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the loop and releases resources.
func (a *App) Shutdown(ctx context.Context) {
	if a.loop != nil {
		a.loop.Close()
	}
	if a.recognizer != nil {
		a.recognizer.Close()
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics shutdown", "error", err)
		}
	}
	a.logger.Info("shutdown complete")
}

// Loop returns the controller.
func (a *App) Loop() *loop.Controller {
	return a.loop
}

// Camera returns the capture manager.
func (a *App) Camera() *camera.Manager {
	return a.camera
}

// CameraConfig converts the file configuration.
func CameraConfig(c config.CameraConfig) camera.Config {
	return camera.Config{
		Device:  c.Device,
		Width:   c.Width,
		Height:  c.Height,
		Quality: c.Quality,
		Mirror:  c.Mirror,
	}
}
