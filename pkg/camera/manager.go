package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Manager owns the capture device. At most one Session is active at a time.
type Manager struct {
	device Device
	logger *slog.Logger

	mu      sync.RWMutex
	config  Config
	session *Session

	// Callback when config changes. Changes apply on the next Start.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager for device with the given capture config.
func NewManager(device Device, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		device: device,
		config: cfg,
		logger: logger.With("component", "camera.manager"),
	}
}

// Start opens the device and returns the new session. On failure no
// session is created and the returned error wraps ErrDeviceUnavailable.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Active() {
		return nil, ErrSessionActive
	}

	cfg := m.config
	track, err := m.device.Open(ctx, cfg)
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		m.logger.Warn("capture device unavailable", "device", cfg.Device, "error", err)
		return nil, err
	}

	m.session = newSession(uuid.NewString(), cfg, track)
	m.logger.Info("capture session started",
		"session", m.session.ID,
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height)
	return m.session, nil
}

// Stop halts every track of the active session and clears the handle.
// Calling Stop with no active session is a no-op. State derived from the
// session is cleared by its owner (loop.Controller).
func (m *Manager) Stop() error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	err := sess.stop()
	m.logger.Info("capture session stopped", "session", sess.ID)
	return err
}

// Session returns the active session, or nil.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.Active() {
		return nil
	}
	return m.session
}

// GetConfig returns the current capture configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig updates the capture configuration used by the next Start.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("validation failed: %v", problems)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}

	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values, plus an optional "preset".
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device
	}

	for key, value := range params {
		switch key {
		case "device":
			if v, ok := value.(string); ok {
				cfg.Device = v
			}
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "quality":
			if v, ok := toInt(value); ok {
				cfg.Quality = v
			}
		case "mirror":
			if v, ok := value.(bool); ok {
				cfg.Mirror = v
			}
		}
	}

	return m.SetConfig(cfg)
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
