package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xray-go/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	signalHandler   *SignalHandler
	producerHandler *ProducerHandler
	deviceHandler   *DeviceHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config          *config.ServerConfig
	Logger          *slog.Logger
	SignalHandler   *SignalHandler
	ProducerHandler *ProducerHandler
	DeviceHandler   *DeviceHandler
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           deps.Config.ReadTimeout,
		WriteTimeout:          deps.Config.WriteTimeout,
		IdleTimeout:           deps.Config.IdleTimeout,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:             app,
		config:          deps.Config,
		logger:          deps.Logger,
		signalHandler:   deps.SignalHandler,
		producerHandler: deps.ProducerHandler,
		deviceHandler:   deps.DeviceHandler,
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware() {
	// Recovery middleware to handle panics
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware for tracing
	s.app.Use(requestid.New())

	// Logger middleware for request logging
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// Health check endpoint
	s.app.Get("/healthz", s.healthCheck)

	// Prometheus metrics endpoint
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Signal CRUD
	s.app.Post("/signals", s.signalHandler.Create)
	s.app.Get("/signals", s.signalHandler.List)
	s.app.Get("/signals/device/:deviceId", s.signalHandler.GetByDeviceID)
	s.app.Get("/signals/:id", s.signalHandler.GetByID)
	s.app.Patch("/signals/:id", s.signalHandler.Update)
	s.app.Delete("/signals/:id", s.signalHandler.Delete)

	// Producer triggers
	s.app.Post("/producer/send-sample", s.producerHandler.SendSample)
	s.app.Post("/producer/send-random", s.producerHandler.SendRandom)
	s.app.Post("/producer/send-random/:deviceId", s.producerHandler.SendRandom)

	// Device ingestion state
	s.app.Get("/devices", s.deviceHandler.List)
	s.app.Get("/devices/:deviceId", s.deviceHandler.Get)
}

// healthCheck returns the health status of the service.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return Success(c, map[string]string{
		"status": "healthy",
	})
}

// App returns the underlying fiber app. Useful for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors returned from handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return Error(c, e.Code, ErrCodeInternalError, e.Message)
	}

	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
