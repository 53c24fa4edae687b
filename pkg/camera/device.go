package camera

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Device opens a video capture source at a requested resolution.
// Implementations return an error wrapping ErrDeviceUnavailable when the
// platform denies or lacks the device.
type Device interface {
	Open(ctx context.Context, cfg Config) (Track, error)
}

// Track is a live video track produced by a Device.
type Track interface {
	// Dimensions returns the native frame size; zero until the device has
	// produced its first frame.
	Dimensions() (width, height int)

	// Render draws the current frame into dst, which is sized to
	// Dimensions(). A track that has stopped delivering frames returns an
	// error wrapping ErrDeviceUnavailable; a single frame that cannot be
	// produced returns one wrapping ErrNoActiveFrame.
	Render(dst *image.RGBA) error

	// Stop halts the track and releases its resources.
	Stop() error
}

// Session is an open handle to the capture device.
// It is created by Manager.Start and invalidated by Manager.Stop.
type Session struct {
	ID      string
	Started time.Time
	Config  Config

	tracks   []Track
	active   atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func newSession(id string, cfg Config, tracks ...Track) *Session {
	s := &Session{
		ID:      id,
		Started: time.Now(),
		Config:  cfg,
		tracks:  tracks,
	}
	s.active.Store(true)
	return s
}

// Active reports whether the session still holds the device.
func (s *Session) Active() bool {
	return s != nil && s.active.Load()
}

// Dimensions returns the native size of the primary video track.
func (s *Session) Dimensions() (int, int) {
	if !s.Active() || len(s.tracks) == 0 {
		return 0, 0
	}
	return s.tracks[0].Dimensions()
}

// render draws the primary track into dst.
func (s *Session) render(dst *image.RGBA) error {
	if !s.Active() || len(s.tracks) == 0 {
		return ErrNoActiveFrame
	}
	return s.tracks[0].Render(dst)
}

// stop halts every track exactly once.
func (s *Session) stop() error {
	s.stopOnce.Do(func() {
		s.active.Store(false)
		for _, t := range s.tracks {
			if err := t.Stop(); err != nil && s.stopErr == nil {
				s.stopErr = err
			}
		}
	})
	return s.stopErr
}
