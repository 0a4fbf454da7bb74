// Package web serves the Perception dashboard and its control API.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/fi-losopher/Perception/pkg/assistant"
	"github.com/fi-losopher/Perception/pkg/camera"
	"github.com/fi-losopher/Perception/pkg/command"
	"github.com/fi-losopher/Perception/pkg/hub"
	"github.com/fi-losopher/Perception/pkg/perception"
)

//go:embed static/index.html
var indexHTML []byte

// Controller is the assistant surface the dashboard drives.
type Controller interface {
	State(ctx context.Context) (assistant.State, error)
	Frame() ([]byte, error)
	StartScan(ctx context.Context) error
	StopScan(ctx context.Context) error
	ToggleScan(ctx context.Context) error
	SetMuted(ctx context.Context, muted bool) error
	ToggleMute(ctx context.Context) error
	SetListening(ctx context.Context, on bool) error
	ToggleListening(ctx context.Context) error
	Describe(ctx context.Context) error
	Help(ctx context.Context) error
	HandleUtterance(ctx context.Context, text string) (command.Action, bool, error)
	RecheckBackend(ctx context.Context) (perception.BackendStatus, error)
}

var _ Controller = (*assistant.Assistant)(nil)

// Transcripts receives speech recognized by the dashboard browser.
type Transcripts interface {
	Push(text string) bool
	Fail(err error) bool
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	addr   string
	ctl    Controller
	logger *slog.Logger

	transcripts Transcripts
	cameras     *camera.Manager

	// Hubs for websocket broadcast (thread-safe!)
	statusHub *hub.Hub
	speechHub *hub.Hub

	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithTranscripts accepts browser transcripts on /ws/speech.
func WithTranscripts(t Transcripts) Option {
	return func(s *Server) { s.transcripts = t }
}

// WithCameraManager exposes camera settings on /api/camera.
func WithCameraManager(m *camera.Manager) Option {
	return func(s *Server) { s.cameras = m }
}

// WithSpeechHub uses h for /ws/speech instead of a hub of its own. Voices
// that must exist before the server broadcast through it.
func WithSpeechHub(h *hub.Hub) Option {
	return func(s *Server) { s.speechHub = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a dashboard server listening on addr.
func NewServer(addr string, ctl Controller, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		ctl:            ctl,
		logger:         slog.Default(),
		requestTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.statusHub = hub.New("status", hub.WithLogger(s.logger), hub.WithReplay())
	if s.speechHub == nil {
		s.speechHub = hub.New("speech",
			hub.WithLogger(s.logger),
			hub.WithHandler(TranscriptHandler(s.transcripts, s.logger)))
	}

	app := fiber.New(fiber.Config{
		AppName:               "Perception",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/frame", s.handleFrame)
	api.Get("/commands", s.handleCommands)
	api.Post("/scan/start", s.action(s.ctl.StartScan))
	api.Post("/scan/stop", s.action(s.ctl.StopScan))
	api.Post("/scan/toggle", s.action(s.ctl.ToggleScan))
	api.Post("/mute", s.handleMute)
	api.Post("/listening", s.handleListening)
	api.Post("/describe", s.action(s.ctl.Describe))
	api.Post("/help", s.action(s.ctl.Help))
	api.Post("/utterance", s.handleUtterance)
	api.Post("/health/recheck", s.handleRecheck)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/speech", websocket.New(s.handleSpeechWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// SpeechHub carries speak events to dashboards.
func (s *Server) SpeechHub() *hub.Hub {
	return s.speechHub
}

// PublishState pushes a state snapshot to every status client.
func (s *Server) PublishState(state assistant.State) {
	if err := s.statusHub.BroadcastJSON(state); err != nil {
		s.logger.Warn("state not published", "error", err)
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.speechHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web: listen %s: %w", s.addr, err)
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	}
}

// speechMessage is a message sent by the dashboard on /ws/speech.
type speechMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// TranscriptHandler decodes dashboard speech messages and forwards them to
// t. A nil t drops everything.
func TranscriptHandler(t Transcripts, logger *slog.Logger) hub.Handler {
	return func(data []byte) {
		if t == nil {
			return
		}
		var msg speechMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("ignoring malformed speech message", "error", err)
			return
		}

		switch msg.Type {
		case "transcript", "":
			if !t.Push(msg.Text) {
				logger.Debug("transcript dropped, not listening", "text", msg.Text)
			}
		case "error":
			logger.Warn("browser recognition error", "error", msg.Error)
			t.Fail(fmt.Errorf("%w: browser: %s", perception.ErrRecognition, msg.Error))
		}
	}
}

func (s *Server) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.requestTimeout)
}

// statusCode maps assistant errors to HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, perception.ErrBackendOffline),
		errors.Is(err, assistant.ErrNotRunning):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrNoSpeechInput):
		return fiber.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
