// Package stabilizer debounces a noisy stream of per-frame labels into a
// single displayed label using a sliding-window majority vote.
//
// The window holds the most recent raw labels (5 by default). After every
// observation the window is scanned in insertion order and the first label
// occurring at least Quorum times (3 by default) becomes the displayed label.
// When nothing reaches quorum the previous label is kept.
//
// A Stabilizer is not safe for concurrent use; its owner serializes access.
package stabilizer

import "fmt"

// Sentinel is the displayed label before any label has reached quorum.
const Sentinel = "—"

// Defaults.
const (
	DefaultCapacity = 5
	DefaultQuorum   = 3
)

// Config sizes the voting window.
type Config struct {
	Capacity int // Window size (most recent raw labels kept)
	Quorum   int // Occurrences required to display a label
}

// DefaultConfig returns the 3-of-5 window.
func DefaultConfig() Config {
	return Config{Capacity: DefaultCapacity, Quorum: DefaultQuorum}
}

// Validate rejects windows where two labels could reach quorum together.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("stabilizer: capacity %d must be positive", c.Capacity)
	}
	if c.Quorum < 1 || c.Quorum > c.Capacity {
		return fmt.Errorf("stabilizer: quorum %d must be between 1 and capacity %d", c.Quorum, c.Capacity)
	}
	if 2*c.Quorum <= c.Capacity {
		return fmt.Errorf("stabilizer: quorum %d must be a strict majority of %d", c.Quorum, c.Capacity)
	}
	return nil
}

// Stabilizer owns the prediction buffer and the displayed label.
type Stabilizer struct {
	cfg Config

	// ring buffer: buf[head] is the oldest entry
	buf  []string
	head int
	n    int

	label string
}

// New creates a stabilizer. An invalid config is an error.
func New(cfg Config) (*Stabilizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stabilizer{
		cfg:   cfg,
		buf:   make([]string, cfg.Capacity),
		label: Sentinel,
	}, nil
}

// NewDefault creates a 3-of-5 stabilizer.
func NewDefault() *Stabilizer {
	s, _ := New(DefaultConfig())
	return s
}

// Observe appends raw to the window, evicting the oldest entry when full,
// and re-evaluates the vote. It returns the displayed label and true when
// a label reached quorum on this observation (even if it equals the label
// already displayed); otherwise the unchanged label and false.
func (s *Stabilizer) Observe(raw string) (string, bool) {
	if s.n < len(s.buf) {
		s.buf[(s.head+s.n)%len(s.buf)] = raw
		s.n++
	} else {
		s.buf[s.head] = raw
		s.head = (s.head + 1) % len(s.buf)
	}

	if winner, ok := s.vote(); ok {
		s.label = winner
		return winner, true
	}
	return s.label, false
}

// vote scans candidates in first-appearance order and returns the first
// whose count meets quorum.
func (s *Stabilizer) vote() (string, bool) {
	counts := make(map[string]int, s.n)
	order := make([]string, 0, s.n)
	for i := 0; i < s.n; i++ {
		l := s.buf[(s.head+i)%len(s.buf)]
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}
	for _, l := range order {
		if counts[l] >= s.cfg.Quorum {
			return l, true
		}
	}
	return "", false
}

// Reset clears the window and reverts to the sentinel.
func (s *Stabilizer) Reset() {
	for i := range s.buf {
		s.buf[i] = ""
	}
	s.head = 0
	s.n = 0
	s.label = Sentinel
}

// Label returns the currently displayed label.
func (s *Stabilizer) Label() string {
	return s.label
}

// Len returns the number of raw labels in the window.
func (s *Stabilizer) Len() int {
	return s.n
}

// Buffer returns the window contents, oldest first.
func (s *Stabilizer) Buffer() []string {
	out := make([]string, s.n)
	for i := range out {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Config returns the window configuration.
func (s *Stabilizer) Config() Config {
	return s.cfg
}
