// Package server exposes the HTTP intake the backend pushes alerts to.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/mr-karan/boxrelay/internal/config"
	"github.com/mr-karan/boxrelay/pkg/models"
)

// maxBodySize caps alert payloads.
const maxBodySize = 1 << 20

// AlertDeliverer fans a validated alert out to its recipients.
type AlertDeliverer interface {
	Deliver(ctx context.Context, alert models.AlertRecord) []models.DeliveryOutcome
}

// Options encapsulates the dependencies of the HTTP server.
type Options struct {
	Config  config.ServerConfig
	Relay   AlertDeliverer
	Logger  *slog.Logger
	Version string
}

// Server is the inbound HTTP API.
type Server struct {
	app     *fiber.App
	config  config.ServerConfig
	relay   AlertDeliverer
	log     *slog.Logger
	version string
	started time.Time
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		config:  opts.Config,
		relay:   opts.Relay,
		log:     opts.Logger.With("component", "server"),
		version: opts.Version,
		started: time.Now(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "boxrelay",
		DisableStartupMessage: true,
		ReadTimeout:           opts.Config.ReadTimeout,
		WriteTimeout:          opts.Config.WriteTimeout,
		BodyLimit:             maxBodySize,
		ErrorHandler:          s.errorHandler,
	})
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.requestID)

	s.app.Post("/alerts/", s.handleReceiveAlert)

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/api/v1/meta", s.handleGetMeta)
	s.app.Get("/metrics", s.handleMetrics)
}

// Start listens on the configured address. It blocks until Shutdown.
func (s *Server) Start() error {
	s.log.Info("starting http server", "address", s.config.Address)
	if err := s.app.Listen(s.config.Address); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestID(c *fiber.Ctx) error {
	id := c.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals("request_id", id)
	c.Set(requestIDHeader, id)
	return c.Next()
}

func requestIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "request_id", requestIDFrom(c), "error", err)
	}
	errCode := CodeInternal
	if code < fiber.StatusInternalServerError {
		errCode = CodeInvalid
	}
	return SendErrorWithType(c, code, err.Error(), errCode, nil)
}
