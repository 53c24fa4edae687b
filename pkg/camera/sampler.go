package camera

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

// JPEGDataURIPrefix prefixes every encoded frame sent over the wire.
const JPEGDataURIPrefix = "data:image/jpeg;base64,"

// Frame is an immutable snapshot of one sampling tick.
type Frame struct {
	SessionID  string
	Pixels     *image.RGBA
	Width      int
	Height     int
	JPEG       []byte
	CapturedAt time.Time
}

// DataURI returns the frame as a base64 JPEG data URI.
func (f *Frame) DataURI() string {
	return JPEGDataURIPrefix + base64.StdEncoding.EncodeToString(f.JPEG)
}

// Sampler extracts still frames from an active session.
type Sampler struct {
	now func() time.Time
}

// NewSampler creates a sampler.
func NewSampler() *Sampler {
	return &Sampler{now: time.Now}
}

// Sample renders the session's current frame into a buffer of the
// capture's native size and encodes it as JPEG using the session's
// quality and mirror settings. It does not retry.
func (s *Sampler) Sample(sess *Session) (*Frame, error) {
	if !sess.Active() {
		return nil, ErrNoActiveFrame
	}
	w, h := sess.Dimensions()
	if w <= 0 || h <= 0 {
		return nil, ErrNoActiveFrame
	}

	buf := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := sess.render(buf); err != nil {
		if errors.Is(err, ErrNoActiveFrame) || errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: render: %v", ErrDeviceUnavailable, err)
	}

	if sess.Config.Mirror {
		Mirror(buf)
	}

	quality := sess.Config.Quality
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, buf, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("camera: encode frame: %w", err)
	}

	return &Frame{
		SessionID:  sess.ID,
		Pixels:     buf,
		Width:      w,
		Height:     h,
		JPEG:       enc.Bytes(),
		CapturedAt: s.now(),
	}, nil
}

// Scale draws src into dst, resampling when the sizes differ.
func Scale(dst *image.RGBA, src image.Image) {
	if src.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
}

// Mirror flips img horizontally in place.
func Mirror(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Min.X, y)+b.Dx()*4]
		for l, r := 0, len(row)-4; l < r; l, r = l+4, r-4 {
			for k := 0; k < 4; k++ {
				row[l+k], row[r+k] = row[r+k], row[l+k]
			}
		}
	}
}
