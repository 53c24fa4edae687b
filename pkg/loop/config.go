package loop

import (
	"errors"
	"fmt"
	"time"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 600 * time.Millisecond

// Ordering selects how out-of-order responses are folded into the window.
type Ordering int

const (
	// OrderLatestCapture applies a result only if its frame was captured
	// after every result already applied. Late, older results are dropped.
	OrderLatestCapture Ordering = iota
	// OrderArrival applies results in the order responses arrive.
	OrderArrival
)

func (o Ordering) String() string {
	switch o {
	case OrderLatestCapture:
		return "latest-capture"
	case OrderArrival:
		return "arrival"
	default:
		return fmt.Sprintf("ordering(%d)", int(o))
	}
}

// ParseOrdering parses "latest-capture" or "arrival".
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "", "latest-capture":
		return OrderLatestCapture, nil
	case "arrival":
		return OrderArrival, nil
	}
	return 0, fmt.Errorf("loop: unknown ordering %q", s)
}

// Config tunes the controller.
type Config struct {
	// Interval between sampling ticks.
	Interval time.Duration

	// RequestTimeout bounds each recognition call. Zero means Interval.
	RequestTimeout time.Duration

	Ordering Ordering
}

// DefaultConfig returns a 600ms loop with latest-capture ordering.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Ordering: OrderLatestCapture}
}

// Validate checks the config.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout must not be negative"))
	}
	if c.Ordering != OrderLatestCapture && c.Ordering != OrderArrival {
		errs = append(errs, fmt.Errorf("unknown ordering %d", c.Ordering))
	}
	return errors.Join(errs...)
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return c.Interval
}
