package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

// PatternDevice is a synthetic capture device that renders a moving test
// pattern. It backs the "pattern" device name and the package tests.
type PatternDevice struct {
	// Warmup delays the first frame after Open; Dimensions reports zero
	// until it elapses.
	Warmup time.Duration

	// OpenErr, when set, makes Open fail as if the device were missing.
	OpenErr error

	mu     sync.Mutex
	opens  int
	stops  int
	tracks []*PatternTrack
}

// Open starts a pattern track at the requested resolution.
func (d *PatternDevice) Open(ctx context.Context, cfg Config) (Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if d.OpenErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, d.OpenErr)
	}
	d.opens++
	t := &PatternTrack{
		device: d,
		width:  cfg.Width,
		height: cfg.Height,
		ready:  time.Now().Add(d.Warmup),
	}
	d.tracks = append(d.tracks, t)
	return t, nil
}

// Opens returns how many tracks were opened.
func (d *PatternDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Stops returns how many track stops were performed.
func (d *PatternDevice) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// Fail makes every open track report the device as gone.
func (d *PatternDevice) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tracks {
		t.mu.Lock()
		t.failErr = err
		t.mu.Unlock()
	}
}

// DropFrame makes the next Render of every open track fail as a frame
// that could not be converted, leaving the tracks open.
func (d *PatternDevice) DropFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tracks {
		t.mu.Lock()
		t.drop = true
		t.mu.Unlock()
	}
}

// PatternTrack is the track produced by PatternDevice.
type PatternTrack struct {
	device *PatternDevice

	mu      sync.Mutex
	width   int
	height  int
	ready   time.Time
	frame   int
	stopped bool
	drop    bool
	failErr error
}

// Dimensions returns zero until the warmup has elapsed.
func (t *PatternTrack) Dimensions() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || time.Now().Before(t.ready) {
		return 0, 0
	}
	return t.width, t.height
}

// Render draws a diagonal gradient shifted by the frame counter.
func (t *PatternTrack) Render(dst *image.RGBA) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, t.failErr)
	}
	if t.stopped {
		return ErrNoActiveFrame
	}
	if t.drop {
		t.drop = false
		return fmt.Errorf("%w: convert frame: bad pixel format", ErrNoActiveFrame)
	}
	t.frame++
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8((x + y + t.frame*8) % 256)
			dst.SetRGBA(x, y, color.RGBA{R: v, G: uint8(y % 256), B: 255 - v, A: 255})
		}
	}
	return nil
}

// Stop halts the track. Only the first call counts as a release.
func (t *PatternTrack) Stop() error {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()

	if !already {
		t.device.mu.Lock()
		t.device.stops++
		t.device.mu.Unlock()
	}
	return nil
}
