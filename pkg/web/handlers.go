package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/voxture/pkg/camera"
	"github.com/teslashibe/voxture/pkg/loop"
	"github.com/teslashibe/voxture/pkg/recognition"
)

// Status is the dashboard view of a loop snapshot. The annotated image is
// served separately and only flagged here.
type Status struct {
	State      loop.State `json:"state"`
	Indicator  string     `json:"indicator"`
	Label      string     `json:"label"`
	HasImage   bool       `json:"has_image"`
	SessionID  string     `json:"session_id,omitempty"`
	Generation uint64     `json:"generation"`
	Ticks      uint64     `json:"ticks"`
	Failures   uint64     `json:"failures"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewStatus converts a snapshot.
func NewStatus(s loop.Snapshot) Status {
	return Status{
		State:      s.State,
		Indicator:  s.StatusText(),
		Label:      s.Label,
		HasImage:   s.AnnotatedImage != "",
		SessionID:  s.SessionID,
		Generation: s.Generation,
		Ticks:      s.Ticks,
		Failures:   s.Failures,
		UpdatedAt:  s.UpdatedAt,
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(NewStatus(s.loop.Snapshot()))
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.loop.Start(c.UserContext()); err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case isDeviceError(err):
			status = fiber.StatusServiceUnavailable
		case errors.Is(err, camera.ErrSessionActive):
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(NewStatus(s.loop.Snapshot()))
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.loop.Stop()
	return c.JSON(NewStatus(s.loop.Snapshot()))
}

// handleImage serves the latest annotated frame as an image.
func (s *Server) handleImage(c *fiber.Ctx) error {
	uri := s.loop.Snapshot().AnnotatedImage
	if uri == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no annotated image",
		})
	}

	data, mime, err := recognition.DecodeDataURI(uri)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set(fiber.HeaderContentType, mime)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.camera.GetConfig())
}

// handleUpdateCamera applies a partial update, e.g. {"preset":"hd"} or
// {"mirror":true}. Changes take effect on the next start.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON body",
		})
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(s.camera.GetConfig())
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}
