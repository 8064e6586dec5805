// Package server exposes the support assistant over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"supportbot/internal/dialogue"
	"supportbot/internal/logger"
)

const module = "http"

type Config struct {
	Port        string
	CorsOrigins string
}

type Server struct {
	app *fiber.App
	cfg Config
	log logger.ILogger
	// stop cancels base, the parent of every streamed turn.
	base context.Context
	stop context.CancelFunc
}

func New(cfg Config, sessions *dialogue.Sessions, log logger.ILogger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "supportbot",
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CorsOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(requestLogger(log))

	api := app.Group("/api")
	api.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(SuccessResponse("ok", fiber.Map{"status": "up"}))
	})
	base, stop := context.WithCancel(context.Background())
	NewChatController(sessions, base, log).RegisterRoutes(api)

	return &Server{app: app, cfg: cfg, log: log, base: base, stop: stop}
}

func (s *Server) App() *fiber.App { return s.app }

// Stop abandons in-flight streamed turns; nothing from them is recorded.
func (s *Server) Stop() { s.stop() }

// Run blocks until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(module, "Server listening", map[string]interface{}{"port": s.cfg.Port})
		errCh <- s.app.Listen(":" + s.cfg.Port)
	}()
	select {
	case err := <-errCh:
		s.stop()
		return err
	case <-ctx.Done():
		s.log.Info(module, "Shutting down server", nil)
		s.stop()
		return s.app.ShutdownWithTimeout(10 * time.Second)
	}
}

func requestLogger(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()
		log.Info(module, "Request handled", map[string]interface{}{
			"method":   ctx.Method(),
			"path":     ctx.Path(),
			"status":   ctx.Response().StatusCode(),
			"duration": time.Since(start).String(),
		})
		return err
	}
}
