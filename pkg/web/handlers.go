package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/fi-losopher/Perception/pkg/camera"
	"github.com/fi-losopher/Perception/pkg/command"
	"github.com/fi-losopher/Perception/pkg/hub"
	"github.com/fi-losopher/Perception/pkg/perception"
	"github.com/fi-losopher/Perception/pkg/scan"
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

// handleStatus returns the assistant state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	ctx, cancel := s.context(c)
	defer cancel()
	return s.respondState(c, ctx)
}

func (s *Server) respondState(c *fiber.Ctx, ctx context.Context) error {
	state, err := s.ctl.State(ctx)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(state)
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	return c.Status(statusCode(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleFrame returns the latest camera frame
func (s *Server) handleFrame(c *fiber.Ctx) error {
	frame, err := s.ctl.Frame()
	if err != nil {
		code := fiber.StatusServiceUnavailable
		if errors.Is(err, perception.ErrNoFrame) {
			code = fiber.StatusNotFound
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("jpeg")
	return c.Send(frame)
}

func (s *Server) handleCommands(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"commands": command.Commands()})
}

// action wraps an assistant operation as a POST handler responding with the
// resulting state. Repeating a scan start or stop is not an error.
func (s *Server) action(op func(context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := s.context(c)
		defer cancel()

		err := op(ctx)
		if err != nil && !errors.Is(err, scan.ErrAlreadyScanning) && !errors.Is(err, scan.ErrNotScanning) {
			return s.fail(c, err)
		}
		return s.respondState(c, ctx)
	}
}

// MuteRequest sets the mute state. A missing field toggles.
type MuteRequest struct {
	Muted *bool `json:"muted"`
}

func (s *Server) handleMute(c *fiber.Ctx) error {
	var req MuteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	return s.action(func(ctx context.Context) error {
		if req.Muted == nil {
			return s.ctl.ToggleMute(ctx)
		}
		return s.ctl.SetMuted(ctx, *req.Muted)
	})(c)
}

// ListeningRequest enables or disables voice commands. A missing field
// toggles.
type ListeningRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleListening(c *fiber.Ctx) error {
	var req ListeningRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	return s.action(func(ctx context.Context) error {
		if req.Enabled == nil {
			return s.ctl.ToggleListening(ctx)
		}
		return s.ctl.SetListening(ctx, *req.Enabled)
	})(c)
}

// UtteranceRequest is a typed or externally recognized command.
type UtteranceRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleUtterance(c *fiber.Ctx) error {
	var req UtteranceRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}

	ctx, cancel := s.context(c)
	defer cancel()

	act, ok, err := s.ctl.HandleUtterance(ctx, req.Text)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"text":    req.Text,
		"matched": ok,
		"action":  act.String(),
	})
}

func (s *Server) handleRecheck(c *fiber.Ctx) error {
	ctx, cancel := s.context(c)
	defer cancel()

	if _, err := s.ctl.RecheckBackend(ctx); err != nil {
		return s.fail(c, err)
	}
	return s.respondState(c, ctx)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings unavailable"})
	}
	return c.JSON(fiber.Map{
		"config":  s.cameras.GetConfig(),
		"presets": camera.PresetNames(),
	})
}

func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings unavailable"})
	}

	var u camera.Update
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.cameras.UpdateConfig(u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"config": s.cameras.GetConfig()})
}

// handleStatusWS streams state snapshots, starting with the latest.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if client := hub.NewClient(s.statusHub, c); client != nil {
		client.Run()
	}
}

// handleSpeechWS carries speak events out and transcripts in.
func (s *Server) handleSpeechWS(c *websocket.Conn) {
	if client := hub.NewClient(s.speechHub, c); client != nil {
		client.Run()
	}
}
