// Package recognition is the client side of the remote sign recognition
// endpoint.
//
// Each sampled frame is POSTed as {"image": "<data URI JPEG>"} to a single
// configured endpoint. The response may carry a "gesture" label and an
// "image" field holding an annotated frame echoed back for display; either
// may be absent.
//
// Example usage:
//
//	client, _ := recognition.NewClient(
//	    recognition.WithEndpoint("http://127.0.0.1:5000/sign"),
//	    recognition.WithTimeout(600*time.Millisecond),
//	)
//	defer client.Close()
//
//	res, err := client.Recognize(ctx, frame)
//	if recognition.IsDropped(err) {
//	    // no result this tick
//	}
package recognition

import (
	"context"

	"github.com/teslashibe/voxture/pkg/camera"
)

// Recognizer classifies a sampled frame.
type Recognizer interface {
	Recognize(ctx context.Context, frame *camera.Frame) (*Result, error)
}

// Result is the parsed endpoint response. Either field may be empty.
type Result struct {
	// Label is the raw per-frame gesture label.
	Label string

	// AnnotatedImage is the data URI of the server's annotated frame.
	AnnotatedImage string

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// HasLabel reports whether the response carried a label.
func (r *Result) HasLabel() bool {
	return r != nil && r.Label != ""
}

// HasImage reports whether the response carried an annotated image.
func (r *Result) HasImage() bool {
	return r != nil && r.AnnotatedImage != ""
}

// wire formats
type signRequest struct {
	Image string `json:"image"`
}

type signResponse struct {
	Gesture *string `json:"gesture"`
	Image   *string `json:"image"`
}
