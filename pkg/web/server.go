// Package web is the voxture dashboard: a fiber server exposing the loop
// status, start/stop actions and the annotated image, with websocket
// feeds for live updates.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/voxture/pkg/camera"
	"github.com/teslashibe/voxture/pkg/hub"
	"github.com/teslashibe/voxture/pkg/loop"
	"github.com/teslashibe/voxture/pkg/recognition"
)

//go:embed static
var staticFiles embed.FS

// Loop is the controller surface the dashboard drives.
type Loop interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() loop.Snapshot
	OnChange(fn func(loop.Snapshot))
}

// CameraSettings reads and updates the capture configuration.
type CameraSettings interface {
	GetConfig() camera.Config
	UpdateConfig(params map[string]interface{}) error
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Camera enables GET/PUT /api/camera when set.
	Camera CameraSettings

	// Metrics is served at /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	addr   string
	loop   Loop
	camera CameraSettings
	logger *slog.Logger

	statusHub *hub.Hub
	imageHub  *hub.Hub

	mu        sync.Mutex
	lastImage string
}

// NewServer builds the routes and subscribes to loop changes.
func NewServer(l Loop, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:      opts.Addr,
		loop:      l,
		camera:    opts.Camera,
		logger:    logger,
		statusHub: hub.New("status", logger),
		imageHub:  hub.New("image", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxture",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)
	api.Get("/image", s.handleImage)
	if s.camera != nil {
		api.Get("/camera", s.handleGetCamera)
		api.Put("/camera", s.handleUpdateCamera)
		api.Get("/camera/presets", s.handlePresets)
	}

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))
	app.Get("/ws/image", websocket.New(s.serveHub(s.imageHub)))

	static, _ := fs.Sub(staticFiles, "static")
	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(static),
		Index: "index.html",
	}))

	s.app = app
	l.OnChange(s.publish)
	return s
}

// Serve runs the hubs and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.imageHub.Run(ctx)
	s.publish(s.loop.Snapshot())

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithContext(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		return <-errCh
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// publish pushes a snapshot to the websocket feeds. It runs inside the
// loop's change notification, so it must not block.
func (s *Server) publish(snap loop.Snapshot) {
	if err := s.statusHub.BroadcastJSON(NewStatus(snap)); err != nil {
		s.logger.Warn("encode status", "error", err)
	}

	s.mu.Lock()
	changed := snap.AnnotatedImage != s.lastImage
	s.lastImage = snap.AnnotatedImage
	s.mu.Unlock()
	if !changed {
		return
	}
	if snap.AnnotatedImage == "" {
		s.imageHub.Clear(true)
		return
	}

	data, _, err := recognition.DecodeDataURI(snap.AnnotatedImage)
	if err != nil {
		s.logger.Debug("annotated image not decodable", "error", err)
		return
	}
	s.imageHub.BroadcastBinary(data)
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := hub.NewClient(h, conn)
		if client == nil {
			conn.Close()
			return
		}
		client.Run()
	}
}

func isDeviceError(err error) bool {
	return errors.Is(err, camera.ErrDeviceUnavailable)
}
