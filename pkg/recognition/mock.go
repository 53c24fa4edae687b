package recognition

import (
	"context"
	"sync"

	"github.com/teslashibe/voxture/pkg/camera"
)

// Mock implements Recognizer for testing.
type Mock struct {
	// RecognizeFunc is called when Recognize is invoked.
	RecognizeFunc func(ctx context.Context, frame *camera.Frame) (*Result, error)

	mu    sync.Mutex
	calls int
}

// NewMock creates a mock that always answers with label.
func NewMock(label string) *Mock {
	return &Mock{
		RecognizeFunc: func(ctx context.Context, frame *camera.Frame) (*Result, error) {
			return &Result{Label: label}, nil
		},
	}
}

// NewSequenceMock answers with labels in order, repeating the last one.
// An empty string answers with a transport error for that call.
func NewSequenceMock(labels ...string) *Mock {
	var (
		mu sync.Mutex
		i  int
	)
	return &Mock{
		RecognizeFunc: func(ctx context.Context, frame *camera.Frame) (*Result, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(labels) == 0 {
				return nil, transportError("mock", context.Canceled)
			}
			l := labels[min(i, len(labels)-1)]
			i++
			if l == "" {
				return nil, transportError("mock", context.DeadlineExceeded)
			}
			return &Result{Label: l}, nil
		},
	}
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		RecognizeFunc: func(ctx context.Context, frame *camera.Frame) (*Result, error) {
			return nil, err
		},
	}
}

// Recognize calls RecognizeFunc and counts the call.
func (m *Mock) Recognize(ctx context.Context, frame *camera.Frame) (*Result, error) {
	m.mu.Lock()
	m.calls++
	fn := m.RecognizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, frame)
	}
	return nil, ErrMalformedResponse
}

// CallCount returns the number of Recognize calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Verify Mock implements Recognizer at compile time.
var _ Recognizer = (*Mock)(nil)
