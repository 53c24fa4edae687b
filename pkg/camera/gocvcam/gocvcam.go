// Package gocvcam is the OpenCV-backed capture device.
package gocvcam

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/teslashibe/voxture/pkg/camera"
	"gocv.io/x/gocv"
)

// Device opens local cameras by index, or streams/files by URL.
type Device struct{}

// New returns a gocv capture device.
func New() *Device {
	return &Device{}
}

// Open requests the configured device at the configured resolution.
func (d *Device) Open(ctx context.Context, cfg camera.Config) (camera.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, err)
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if idx, ok := cfg.DeviceIndex(); ok {
		capture, err = gocv.OpenVideoCapture(idx)
	} else {
		capture, err = gocv.OpenVideoCapture(cfg.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", camera.ErrDeviceUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s not opened", camera.ErrDeviceUnavailable, cfg.Device)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	// Keep only the newest frame so a sample reflects "now".
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	return &Track{capture: capture, mat: gocv.NewMat()}, nil
}

// Track is a live gocv capture.
type Track struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	width   int
	height  int
	stopped bool
}

// Dimensions returns the size of the last frame read; zero before the
// first frame. The first call primes the capture by reading one frame.
func (t *Track) Dimensions() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return 0, 0
	}
	if t.width == 0 {
		t.read()
	}
	return t.width, t.height
}

// read grabs the next frame into t.mat. Must be called with t.mu held.
func (t *Track) read() bool {
	if ok := t.capture.Read(&t.mat); !ok || t.mat.Empty() {
		return false
	}
	t.width, t.height = t.mat.Cols(), t.mat.Rows()
	return true
}

// Render reads the newest frame and draws it into dst.
func (t *Track) Render(dst *image.RGBA) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return camera.ErrNoActiveFrame
	}
	if !t.read() {
		return fmt.Errorf("%w: read failed", camera.ErrDeviceUnavailable)
	}

	img, err := t.mat.ToImage()
	if err != nil {
		// A frame that fails to convert only costs this tick.
		return fmt.Errorf("%w: convert frame: %v", camera.ErrNoActiveFrame, err)
	}
	camera.Scale(dst, img)
	return nil
}

// Stop releases the capture. Safe to call more than once.
func (t *Track) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	t.mat.Close()
	return t.capture.Close()
}

var _ camera.Device = (*Device)(nil)
var _ camera.Track = (*Track)(nil)
