package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tipjar/broker/internal/config"
	"github.com/tipjar/broker/internal/http/dto"
	"github.com/tipjar/broker/internal/http/handlers"
	"github.com/tipjar/broker/internal/middleware"
	"go.uber.org/zap"
)

// NewApp builds the fiber app with the JSON error handler.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{
				Error:     err.Error(),
				RequestID: middleware.GetRequestID(c),
			})
		},
	})
}

// rdb may be nil, which disables rate limiting.
func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	healthHandler *handlers.HealthHandler,
	streamerHandler *handlers.StreamerHandler,
	wsHandler *handlers.WSHandler,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, " + middleware.HeaderRequestID,
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log, "/health", "/metrics"))

	app.Get("/health", healthHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, "api", cfg.RateLimitPerMinute, time.Minute, log))
	api.Get("/streamers/online", streamerHandler.ListOnline)
	api.Get("/streamers/:userName", streamerHandler.GetStreamer)

	// WebSocket
	ws := app.Group("/ws", handlers.WSUpgradeMiddleware())
	ws.Use(middleware.RateLimitMiddleware(rdb, "ws", cfg.RateLimitPerMinute, time.Minute, log))
	ws.Get("/streamer", wsHandler.Streamer())
	ws.Get("/donator", wsHandler.Donator())
	ws.Get("/animation", wsHandler.Animation())
}
