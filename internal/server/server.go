// Package server exposes the assistant over HTTP and WebSocket: a
// chat endpoint for plain requests, a WebSocket relay for interactive
// text and voice turns, and a static frontend.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"mindmate/internal/assistant"
	"mindmate/pkg/wire"
)

const healthMessage = "MindMate Voice Assistant is running"

// Config holds the server's listen address and static file root.
type Config struct {
	Addr      string
	StaticDir string
}

// Server relays conversational turns between clients and the pipeline.
type Server struct {
	app      *fiber.App
	addr     string
	pipeline *assistant.Pipeline
	registry *Registry
	logger   *slog.Logger
}

// New builds the server and mounts its routes.
func New(pipeline *assistant.Pipeline, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:     cfg.Addr,
		pipeline: pipeline,
		registry: NewRegistry(),
		logger:   logger.With("component", "server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "MindMate",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Post("/api/chat", s.handleChat)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Listen serves on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.logger.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Listener serves on an existing listener. Tests use this to bind a
// random port.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Connections reports the number of live WebSocket clients.
func (s *Server) Connections() int {
	return s.registry.Count()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": healthMessage,
	})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reply, err := s.pipeline.TextTurn(c.UserContext(), req.Text)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"response": reply})
}

// handleWS serves one client conversation. Turn failures are reported
// as error messages; the connection stays open until the client hangs
// up or a frame cannot be read.
func (s *Server) handleWS(c *websocket.Conn) {
	id := s.registry.Add(c)
	defer s.registry.Remove(id)

	ctx := context.Background()
	s.logger.Info("client connected", "id", id, "clients", s.registry.Count())
	defer s.logger.Info("client disconnected", "id", id)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		msg, err := wire.ParseClientMessage(data)
		if err != nil {
			s.send(c, wire.ErrorMessage("invalid message format"))
			continue
		}

		switch msg.Type {
		case wire.TypeText:
			s.textTurn(ctx, c, msg.Text)
		case wire.TypeAudio:
			s.audioTurn(ctx, c, msg)
		default:
			s.send(c, wire.ErrorMessage(fmt.Sprintf("unknown message type: %s", msg.Type)))
		}
	}
}

func (s *Server) textTurn(ctx context.Context, c *websocket.Conn, text string) {
	reply, err := s.pipeline.TextTurn(ctx, text)
	if err != nil {
		s.send(c, wire.ErrorMessage("Error processing message"))
		return
	}
	s.send(c, &wire.ServerMessage{
		Type:  wire.TypeTextResponse,
		Text:  reply,
		Audio: s.pipeline.Speak(ctx, reply),
	})
}

func (s *Server) audioTurn(ctx context.Context, c *websocket.Conn, msg *wire.ClientMessage) {
	if msg.Audio == "" {
		s.send(c, wire.ErrorMessage("No audio data received"))
		return
	}

	audio, err := msg.DecodeAudio()
	if err != nil {
		s.send(c, wire.ErrorMessage(fmt.Sprintf("Error processing audio: %v", err)))
		return
	}

	transcript, reply, err := s.pipeline.AudioTurn(ctx, audio)
	if err != nil {
		s.send(c, wire.ErrorMessage(fmt.Sprintf("Error processing audio: %v", err)))
		return
	}

	s.logger.Debug("audio turn", "transcript_chars", len(transcript))
	s.send(c, &wire.ServerMessage{
		Type:  wire.TypeAudioResponse,
		Text:  reply,
		Audio: s.pipeline.Speak(ctx, reply),
	})
}

func (s *Server) send(c *websocket.Conn, m *wire.ServerMessage) {
	if err := c.WriteJSON(m); err != nil {
		s.logger.Warn("write failed", "error", err)
	}
}
