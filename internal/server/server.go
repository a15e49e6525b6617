// Package server exposes the engine over HTTP and WebSocket endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"playroom/internal/chat"
	"playroom/internal/config"
	"playroom/internal/friends"
	"playroom/internal/game"
	"playroom/internal/middleware"
	"playroom/internal/models"
	"playroom/internal/observability"
	"playroom/internal/presence"
	"playroom/internal/session"
	"playroom/internal/store"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config   *config.Config
	store    store.Store
	app      *fiber.App
	prom     *fiberprometheus.FiberPrometheus
	log      *slog.Logger
	presence *presence.Manager
	sessions *session.Manager
	friends  *friends.Graph
	chat     *chat.Service
	engine   *game.Engine
	gate     *game.Gate
}

// NewServer wires the engine's services over the given store.
func NewServer(cfg *config.Config, st store.Store) *Server {
	log := observability.Component("server")
	pres := presence.NewManager(st, cfg.PresenceGrace(), observability.Component("presence"))
	graph := friends.NewGraph(st, observability.Component("friends"))
	engine := game.NewEngine(st, observability.Component("game"))

	return &Server{
		config:   cfg,
		store:    st,
		prom:     middleware.InitMetrics("playroom-api"),
		log:      log,
		presence: pres,
		sessions: session.NewManager(st, pres, observability.Component("session")),
		friends:  graph,
		chat:     chat.NewService(st, graph, cfg.TypingIdle(), observability.Component("chat")),
		engine:   engine,
		gate:     game.NewGate(st, engine, graph, observability.Component("game")),
	}
}

// SetupMiddleware configures app-wide middleware.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	if s.prom != nil {
		app.Use(middleware.MetricsMiddleware(s.prom))
	}
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/healthz", s.HealthCheck)
	if s.prom != nil {
		s.prom.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Post("/auth/login", s.Login)

	protected := api.Group("", middleware.AuthRequired(s.config.JWTSecret))
	protected.Post("/auth/logout", s.Logout)

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Get("/search", s.SearchUsers)

	pres := protected.Group("/presence")
	pres.Post("/background", s.PresenceBackground)
	pres.Post("/foreground", s.PresenceForeground)

	fr := protected.Group("/friends")
	fr.Get("/", s.GetFriends)
	fr.Post("/requests", s.SendFriendRequest)
	fr.Post("/requests/:id/accept", s.AcceptFriendRequest)
	fr.Post("/requests/:id/reject", s.RejectFriendRequest)

	groups := protected.Group("/groups")
	groups.Post("/", s.CreateGroup)

	games := protected.Group("/games")
	games.Get("/active", s.GetActiveGame)
	games.Get("/stats/:uid", s.GetGameStats)
	games.Post("/invites", s.SendGameInvite)
	games.Post("/invites/:id/accept", s.AcceptGameInvite)
	games.Post("/invites/:id/reject", s.RejectGameInvite)
	games.Post("/:id/moves", s.ApplyGameMove)
	games.Post("/:id/exit", s.ExitGame)
	games.Post("/:id/rematch", s.RematchGame)

	ws := api.Group("/ws", middleware.AuthRequired(s.config.JWTSecret))
	ws.Get("/friends", s.FriendsStream())
	ws.Get("/chat/:peerId", s.ChatStream())
	ws.Get("/groups", s.GroupListStream())
	ws.Get("/groups/:id", s.GroupChatStream())
	ws.Get("/lobby", s.LobbyStream())
	ws.Get("/games/:id", s.GameStream())
}

// HealthCheck reports process liveness and store reachability.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	status := fiber.StatusOK
	if _, err := s.store.Get(ctx, store.Key{Collection: "health", ID: "probe"}); err != nil {
		storeStatus = "unhealthy"
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status": storeStatus,
		"time":   time.Now(),
	})
}

// Start runs the HTTP server until shutdown.
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "Playroom API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			s.log.Error("unhandled error", "path", c.Path(), "error", err)
			return respondError(c, err)
		},
	})
	s.app = app
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	s.log.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown stops the listener and disarms all presence timers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.log.Error("error shutting down HTTP server", "error", err)
		}
	}
	s.presence.Stop()
	s.log.Info("server shutdown complete")
	return nil
}

// respondError maps application errors to HTTP responses.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	status := fiber.StatusInternalServerError
	switch appErr.Code {
	case models.CodeValidation:
		status = fiber.StatusBadRequest
	case models.CodeNotFound:
		status = fiber.StatusNotFound
	case models.CodeAlreadyInGame, models.CodeNotFriends, models.CodeSelfRequest:
		status = fiber.StatusConflict
	case models.CodeStoreUnavailable:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}
