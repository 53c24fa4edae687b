// voxture - live sign recognition client.
// Samples frames from a local camera, sends them to a recognition endpoint
// and shows the stabilized gesture label on a web dashboard.
//
// Usage:
//
//	voxture [flags]              run the loop and dashboard
//	voxture watch [-url URL]     follow a running dashboard from the terminal
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/voxture/internal/config"
	vlog "github.com/teslashibe/voxture/internal/log"
	"github.com/teslashibe/voxture/pkg/app"
	"github.com/teslashibe/voxture/pkg/camera"
	"github.com/teslashibe/voxture/pkg/camera/gocvcam"
	"github.com/teslashibe/voxture/pkg/web"
)

// patternDevice selects the synthetic test pattern instead of a camera.
const patternDevice = "pattern"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "watch" {
		err = watch(ctx, os.Args[2:])
	} else {
		err = run(ctx, os.Args[1:])
	}
	if err != nil {
		vlog.Error("voxture failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("voxture", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	envFile := fs.String("env", ".env", "dotenv file (ignored if missing)")
	endpoint := fs.String("endpoint", "", "recognition endpoint URL (overrides "+config.EnvEndpoint+")")
	device := fs.String("camera", "", `camera index, stream URL, or "pattern"`)
	preset := fs.String("preset", "", "capture preset: default, low, hd")
	port := fs.String("port", "", "dashboard port")
	logLevel := fs.String("log-level", "", "debug, info, warn, error")
	interval := fs.Duration("interval", 0, "sampling interval")
	ordering := fs.String("ordering", "", "result ordering: latest-capture, arrival")
	mirror := fs.Bool("mirror", false, "flip frames horizontally")
	autoStart := fs.Bool("start", false, "start recognizing immediately")
	noWeb := fs.Bool("no-web", false, "disable the dashboard")
	fs.Parse(args)

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Decode(*configPath)
	if err != nil {
		return err
	}

	// Flags win over file and environment. app.New validates the result.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "camera":
			cfg.Camera.Device = *device
		case "port":
			cfg.Server.Port = *port
		case "log-level":
			cfg.LogLevel = *logLevel
		case "interval":
			cfg.Loop.Interval = *interval
		case "ordering":
			cfg.Loop.Ordering = *ordering
		case "mirror":
			cfg.Camera.Mirror = *mirror
		case "start":
			cfg.Loop.AutoStart = *autoStart
		case "no-web":
			cfg.Server.Disabled = *noWeb
		}
	})
	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			return fmt.Errorf("unknown preset %q (have %v)", *preset, camera.PresetNames())
		}
		cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Quality = p.Width, p.Height, p.Quality
	}

	vlog.Init(cfg.LogLevel)
	logger := vlog.L()

	var dev camera.Device
	if cfg.Camera.Device == patternDevice {
		dev = &camera.PatternDevice{Warmup: 300 * time.Millisecond}
	} else {
		dev = gocvcam.New()
	}

	a, err := app.New(cfg, dev, logger)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if err := a.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	vlog.Info("voxture ready",
		"endpoint", cfg.Endpoint,
		"camera", cfg.Camera.Device,
		"interval", cfg.Loop.Interval)

	runErr := a.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Shutdown(shutdownCtx)
	return runErr
}

func watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:"+config.DefaultPort+"/ws/status", "dashboard status feed")
	fs.Parse(args)

	last := ""
	err := web.Watch(ctx, *url, func(st web.Status) {
		line := fmt.Sprintf("[%s] %s", st.Indicator, st.Label)
		if line == last {
			return
		}
		last = line
		fmt.Println(line)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
