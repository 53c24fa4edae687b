// Package camera owns the capture device lifecycle and frame sampling.
//
// A Manager opens one Device at a time and hands out a Session; a Sampler
// renders the session's current frame into an RGBA buffer at the capture's
// native size and encodes it as JPEG for transport.
package camera

import "strconv"

// Config holds the capture parameters.
type Config struct {
	// Device is a camera index ("0") or a stream URL/file path.
	Device string `json:"device"`

	// === Resolution ===
	Width  int `json:"width"`  // Requested frame width in pixels
	Height int `json:"height"` // Requested frame height in pixels

	// Quality is the JPEG quality used when sampling (1-100).
	Quality int `json:"quality"`

	// Mirror flips frames horizontally before encoding, so the user sees
	// themselves as in a mirror and left/right hand signs are not swapped.
	Mirror bool `json:"mirror"`
}

// Limits accepted by Validate.
const (
	MinWidth  = 160
	MinHeight = 120
	MaxWidth  = 3840
	MaxHeight = 2160
)

// DefaultConfig returns the 640x480 capture used by the recognition loop.
func DefaultConfig() Config {
	return Config{
		Device:  "0",
		Width:   640,
		Height:  480,
		Quality: 85,
	}
}

// DeviceIndex returns the numeric device index, or false when Device is
// a URL or path.
func (c Config) DeviceIndex() (int, bool) {
	i, err := strconv.Atoi(c.Device)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
