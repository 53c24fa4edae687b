package camera

import (
	"context"
	"errors"
	"testing"

	vlog "github.com/teslashibe/voxture/internal/log"
)

func newTestManager(dev Device) *Manager {
	return NewManager(dev, DefaultConfig(), vlog.Discard())
}

func TestManager_StartStop(t *testing.T) {
	dev := &PatternDevice{}
	m := newTestManager(dev)

	sess, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sess.Active() {
		t.Fatal("expected active session")
	}
	if sess.ID == "" {
		t.Error("expected session ID")
	}
	if m.Session() != sess {
		t.Error("Session() should return the active session")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sess.Active() {
		t.Error("session still active after Stop")
	}
	if m.Session() != nil {
		t.Error("Session() should be nil after Stop")
	}
	if dev.Stops() != 1 {
		t.Errorf("stops: got %d, want 1", dev.Stops())
	}
}

func TestManager_StopIdempotent(t *testing.T) {
	dev := &PatternDevice{}
	m := newTestManager(dev)

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := m.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}

	if dev.Stops() != 1 {
		t.Errorf("device released %d times, want exactly 1", dev.Stops())
	}
	if m.Session() != nil {
		t.Error("Session() should be nil after Stop")
	}
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := newTestManager(&PatternDevice{})
	if err := m.Stop(); err != nil {
		t.Errorf("Stop on idle manager: %v", err)
	}
}

func TestManager_StartFailure(t *testing.T) {
	dev := &PatternDevice{OpenErr: errors.New("permission denied")}
	m := newTestManager(dev)

	sess, err := m.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if sess != nil {
		t.Error("no session should be created on failure")
	}
	if m.Session() != nil {
		t.Error("manager should hold no session on failure")
	}
}

type plainErrDevice struct{}

func (plainErrDevice) Open(context.Context, Config) (Track, error) {
	return nil, errors.New("no such device")
}

func TestManager_StartWrapsPlainErrors(t *testing.T) {
	m := newTestManager(plainErrDevice{})
	if _, err := m.Start(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected wrapped ErrDeviceUnavailable, got %v", err)
	}
}

func TestManager_SingleSession(t *testing.T) {
	dev := &PatternDevice{}
	m := newTestManager(dev)

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start: expected ErrSessionActive, got %v", err)
	}
	if dev.Opens() != 1 {
		t.Errorf("opens: got %d, want 1", dev.Opens())
	}
}

func TestManager_RestartGetsNewSession(t *testing.T) {
	m := newTestManager(&PatternDevice{})

	first, _ := m.Start(context.Background())
	m.Stop()
	second, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first.ID == second.ID {
		t.Error("restart reused the session ID")
	}
	if first.Active() {
		t.Error("old session reactivated")
	}
}

func TestManager_UpdateConfig(t *testing.T) {
	m := newTestManager(&PatternDevice{})

	if err := m.UpdateConfig(map[string]interface{}{"preset": PresetLow, "mirror": true}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	cfg := m.GetConfig()
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("preset not applied: %dx%d", cfg.Width, cfg.Height)
	}
	if !cfg.Mirror {
		t.Error("mirror override not applied")
	}
	if cfg.Device != "0" {
		t.Errorf("preset should keep device, got %q", cfg.Device)
	}

	if err := m.UpdateConfig(map[string]interface{}{"quality": float64(0)}); err == nil {
		t.Error("expected validation error for quality 0")
	}
	if err := m.UpdateConfig(map[string]interface{}{"preset": "8k"}); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"low", LowConfig(), false},
		{"hd", HDConfig(), false},
		{"tiny", Config{Device: "0", Width: 10, Height: 10, Quality: 80}, true},
		{"no device", Config{Width: 640, Height: 480, Quality: 80}, true},
		{"quality", Config{Device: "0", Width: 640, Height: 480, Quality: 0}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := tc.cfg.Validate()
			if (len(errs) > 0) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", errs, tc.wantErr)
			}
		})
	}
}

func TestConfig_DeviceIndex(t *testing.T) {
	if i, ok := (Config{Device: "2"}).DeviceIndex(); !ok || i != 2 {
		t.Errorf("got (%d, %v), want (2, true)", i, ok)
	}
	if _, ok := (Config{Device: "rtsp://cam/1"}).DeviceIndex(); ok {
		t.Error("URL should not parse as index")
	}
}
