// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	_ "smedia/docs" // swagger docs
	"smedia/internal/bootstrap"
	"smedia/internal/config"
	"smedia/internal/featureflags"
	"smedia/internal/middleware"
	"smedia/internal/models"
	"smedia/internal/notifications"
	"smedia/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	runtime        *bootstrap.Runtime
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	notifier     *notifications.Notifier
	hub          *notifications.FeedHub
	featureFlags *featureflags.Manager

	posts        *service.PostService
	interactions *service.InteractionService
}

// NewServerWithDeps creates a Server on top of an initialized runtime.
func NewServerWithDeps(cfg *config.Config, rt *bootstrap.Runtime) (*Server, error) {
	if rt == nil || rt.Posts == nil {
		return nil, errors.New("runtime has no post store")
	}
	middleware.InitMiddleware(cfg)

	s := &Server{
		config:         cfg,
		runtime:        rt,
		redis:          rt.Redis,
		promMiddleware: middleware.InitMetrics("smedia-api"),
		hub:            notifications.NewFeedHub(),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	if rt.Redis != nil {
		s.notifier = notifications.NewNotifier(rt.Redis)
	}

	publisher := notifications.NewFeedPublisher(s.notifier, s.hub)
	s.posts = service.NewPostService(rt.Posts, rt.Users, publisher)
	s.interactions = service.NewInteractionService(rt.Posts, publisher)
	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "smedia metrics"}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	api.Get("/search", middleware.RateLimit(s.redis, 30, time.Minute, "search"), s.Search)

	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", middleware.AuthRequired,
		middleware.RateLimit(s.redis, 5, 5*time.Minute, "create_post"), s.CreatePost)

	// Specific /:id/:action routes before the generic /:id routes.
	posts.Post("/:id/view", s.IncrementView)
	posts.Post("/:id/like", middleware.AuthRequired, s.ToggleLike)
	posts.Post("/:id/repost", middleware.AuthRequired, s.ToggleRepost)
	posts.Post("/:id/comment", middleware.AuthRequired,
		middleware.RateLimit(s.redis, 10, time.Minute, "comment"), s.AddComment)
	posts.Post("/:id/report", middleware.AuthRequired,
		middleware.RateLimit(s.redis, 10, time.Minute, "report"), s.ReportPost)

	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", middleware.AuthRequired, s.UpdatePost)
	posts.Delete("/:id", middleware.AuthRequired, s.DeletePost)

	api.Get("/reports/me", middleware.AuthRequired, s.GetMyReportedPosts)

	api.Get("/ws/feed", middleware.WebSocketAuthRequired, s.FeedWebsocketHandler())

	api.Get("/admin/feature-flags", middleware.AuthRequired, s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the store and Redis answer.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeErr, redisErr := s.runtime.Ping(ctx)

	storeStatus := "healthy"
	if storeErr != nil {
		storeStatus = "unhealthy"
	}
	redisStatus := "healthy"
	switch {
	case s.redis == nil:
		redisStatus = "disabled"
	case redisErr != nil:
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if storeErr != nil || redisErr != nil {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"store":       storeStatus,
			"storeDriver": s.runtime.Driver,
			"redis":       redisStatus,
			"websockets":  s.hub.Count(),
		},
		"time": time.Now(),
	})
}

// NewApp builds the fiber app with middleware and routes but does not listen.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "smedia",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithAppError(c, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start wires the feed hub to Redis and listens on the configured port.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	if s.notifier != nil {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("failed to start feed wiring", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, closes websocket clients and releases backends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down feed hub", slog.String("error", err.Error()))
	}

	if err := s.runtime.Close(ctx); err != nil {
		middleware.Logger.Error("error closing backends", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
