package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/destialarm/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	if deps.Version == "" {
		deps.Version = "dev"
	}

	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Devices push a sample every second or so; 600/min leaves room for a few riders behind one NAT.
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(SecurityHeaders(deps.Version))
	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/status", StatusHandler(deps))
	v1.Get("/route", RouteHandler(deps))
	// Geocoding waits on Nominatim.
	v1.Post("/destination", timeout.NewWithContext(SetDestinationHandler(deps), 20*time.Second))
	v1.Put("/alarm/radius", timeout.NewWithContext(SetAlarmRadiusHandler(deps), 5*time.Second))
	v1.Post("/alarm/:action", timeout.NewWithContext(AlarmControlHandler(deps), 5*time.Second))
	v1.Post("/positions", timeout.NewWithContext(PostPositionHandler(deps), 5*time.Second))
	v1.Get("/alerts", timeout.NewWithContext(ListAlertsHandler(deps), 15*time.Second))
	v1.Get("/trips", timeout.NewWithContext(RecentTripsHandler(deps), 15*time.Second))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.DocsPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
