package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	vlog "github.com/teslashibe/voxture/internal/log"
	"github.com/teslashibe/voxture/pkg/camera"
	"github.com/teslashibe/voxture/pkg/loop"
	"github.com/teslashibe/voxture/pkg/recognition"
	"github.com/teslashibe/voxture/pkg/stabilizer"
)

// fakeLoop is a scripted Loop.
type fakeLoop struct {
	mu        sync.Mutex
	snap      loop.Snapshot
	startErr  error
	listeners []func(loop.Snapshot)
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{snap: loop.Snapshot{State: loop.Idle, Label: stabilizer.Sentinel}}
}

func (f *fakeLoop) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.set(func(s *loop.Snapshot) { s.State = loop.Running })
	return nil
}

func (f *fakeLoop) Stop() {
	f.set(func(s *loop.Snapshot) {
		s.State = loop.Idle
		s.Label = stabilizer.Sentinel
		s.AnnotatedImage = ""
	})
}

func (f *fakeLoop) Snapshot() loop.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeLoop) OnChange(fn func(loop.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *fakeLoop) set(update func(*loop.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	update(&f.snap)
	for _, fn := range f.listeners {
		fn(f.snap)
	}
}

func decodeStatus(t *testing.T, body io.Reader) Status {
	t.Helper()
	var st Status
	if err := json.NewDecoder(body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestStatusStartStop(t *testing.T) {
	dev := &camera.PatternDevice{}
	mgr := camera.NewManager(dev, camera.DefaultConfig(), vlog.Discard())
	ctrl, err := loop.New(loop.Config{Interval: time.Hour}, mgr, recognition.NewMock("A"), loop.WithLogger(vlog.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	app := NewServer(ctrl, Options{Logger: vlog.Discard()}).App()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	st := decodeStatus(t, resp.Body)
	if st.State != loop.Idle || st.Label != stabilizer.Sentinel || st.Indicator != "Inactive" {
		t.Errorf("initial status: %+v", st)
	}

	resp, err = app.Test(httptest.NewRequest("POST", "/api/start", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
	st = decodeStatus(t, resp.Body)
	if st.State != loop.Running || st.Indicator != "Active" || st.SessionID == "" {
		t.Errorf("after start: %+v", st)
	}

	resp, err = app.Test(httptest.NewRequest("POST", "/api/stop", nil))
	if err != nil {
		t.Fatal(err)
	}
	if st = decodeStatus(t, resp.Body); st.State != loop.Idle {
		t.Errorf("after stop: %+v", st)
	}
	if dev.Stops() != 1 {
		t.Errorf("device stops: got %d", dev.Stops())
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"device unavailable", fmt.Errorf("%w: no camera", camera.ErrDeviceUnavailable), http.StatusServiceUnavailable},
		{"session active", camera.ErrSessionActive, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fl := newFakeLoop()
			fl.startErr = tc.err
			app := NewServer(fl, Options{Logger: vlog.Discard()}).App()

			resp, err := app.Test(httptest.NewRequest("POST", "/api/start", nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tc.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.want)
			}
			if fl.Snapshot().State != loop.Idle {
				t.Error("loop left idle state")
			}
		})
	}
}

func TestImage(t *testing.T) {
	fl := newFakeLoop()
	app := NewServer(fl, Options{Logger: vlog.Discard()}).App()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/image", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no image: status %d", resp.StatusCode)
	}

	fl.set(func(s *loop.Snapshot) { s.AnnotatedImage = "data:image/jpeg;base64,/9j/2Q==" })

	resp, err = app.Test(httptest.NewRequest("GET", "/api/image", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("image: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type: %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 4 || body[0] != 0xff || body[1] != 0xd8 {
		t.Errorf("body: %x", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/api/status", nil))
	if st := decodeStatus(t, resp.Body); !st.HasImage {
		t.Error("status should flag the image")
	}
}

func TestCameraConfig(t *testing.T) {
	mgr := camera.NewManager(&camera.PatternDevice{}, camera.DefaultConfig(), vlog.Discard())
	app := NewServer(newFakeLoop(), Options{Camera: mgr, Logger: vlog.Discard()}).App()

	req := httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{"preset":"hd","mirror":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("update: status %d: %s", resp.StatusCode, body)
	}

	cfg := mgr.GetConfig()
	if cfg.Width != 1280 || cfg.Height != 720 || !cfg.Mirror {
		t.Errorf("config after update: %+v", cfg)
	}

	req = httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{"width":10}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid width: status %d", resp.StatusCode)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "voxture_ticks_total 3\n")
	})
	app := NewServer(newFakeLoop(), Options{Metrics: metrics, Logger: vlog.Discard()}).App()

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "voxture_ticks_total") {
		t.Errorf("metrics body: %s", body)
	}
}

func TestDashboardPage(t *testing.T) {
	app := NewServer(newFakeLoop(), Options{Logger: vlog.Discard()}).App()

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "/ws/status") {
		t.Error("dashboard page missing status feed")
	}
}

func TestWatch(t *testing.T) {
	fl := newFakeLoop()
	srv := NewServer(fl, Options{Logger: vlog.Discard()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srvCtx, stopServer := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(srvCtx, ln) }()
	defer func() {
		stopServer()
		<-served
	}()

	statuses := make(chan Status, 16)
	watchCtx, stopWatch := context.WithCancel(context.Background())
	watched := make(chan error, 1)
	go func() {
		watched <- Watch(watchCtx, "ws://"+ln.Addr().String()+"/ws/status", func(st Status) {
			statuses <- st
		})
	}()

	next := func() Status {
		t.Helper()
		select {
		case st := <-statuses:
			return st
		case <-time.After(3 * time.Second):
			t.Fatal("no status received")
			return Status{}
		}
	}

	if st := next(); st.State != loop.Idle {
		t.Errorf("first status: %+v", st)
	}

	fl.set(func(s *loop.Snapshot) { s.State = loop.Running; s.Label = "hello" })
	st := next()
	for st.State != loop.Running {
		st = next()
	}
	if st.Label != "hello" {
		t.Errorf("running status: %+v", st)
	}

	stopWatch()
	select {
	case err := <-watched:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestImageFeedClearedOnStop(t *testing.T) {
	fl := newFakeLoop()
	fl.set(func(s *loop.Snapshot) { s.State = loop.Running })
	srv := NewServer(fl, Options{Logger: vlog.Discard()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	var conns []*gws.Conn
	defer func() {
		for _, conn := range conns {
			conn.Close()
		}
		cancel()
		<-served
	}()

	url := "ws://" + ln.Addr().String() + "/ws/image"
	dial := func() *gws.Conn {
		t.Helper()
		conn, _, err := gws.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		conns = append(conns, conn)
		return conn
	}
	read := func(conn *gws.Conn, wait time.Duration) ([]byte, error) {
		conn.SetReadDeadline(time.Now().Add(wait))
		mt, data, err := conn.ReadMessage()
		if err == nil && mt != gws.BinaryMessage {
			t.Errorf("frame type %d, want binary", mt)
		}
		return data, err
	}

	first := dial()
	fl.set(func(s *loop.Snapshot) { s.AnnotatedImage = "data:image/jpeg;base64,/9j/2Q==" })
	if data, err := read(first, 3*time.Second); err != nil || len(data) != 4 {
		t.Fatalf("image frame: %x, %v", data, err)
	}

	fl.Stop()
	if data, err := read(first, 3*time.Second); err != nil || len(data) != 0 {
		t.Fatalf("clear frame: %x, %v", data, err)
	}

	late := dial()
	if data, err := read(late, 300*time.Millisecond); err == nil {
		t.Errorf("new dashboard got a stopped session's image: %x", data)
	}
}
