package loop

import (
	"fmt"
	"strings"
	"time"
)

// State is the recognition loop state.
type State int

const (
	// Idle means no capture and no ticks.
	Idle State = iota
	// Running means a capture session is open and ticks are scheduled.
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	default:
		return fmt.Errorf("loop: unknown state %q", b)
	}
	return nil
}

// Snapshot is a consistent view of the observable loop values.
type Snapshot struct {
	State          State     `json:"state"`
	Label          string    `json:"label"`
	AnnotatedImage string    `json:"annotated_image,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Generation     uint64    `json:"generation"`
	Ticks          uint64    `json:"ticks"`
	Failures       uint64    `json:"failures"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Active reports whether the status indicator should show Active.
func (s Snapshot) Active() bool {
	return s.State == Running
}

// StatusText is the indicator text for the state.
func (s Snapshot) StatusText() string {
	if s.Active() {
		return "Active"
	}
	return "Inactive"
}
