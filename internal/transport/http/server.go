package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crewmate/internal/app"
	"crewmate/internal/auth"
	"crewmate/internal/config"
	"crewmate/internal/transport/ws"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *gin.Engine
	hub    *app.Hub
	issuer *auth.Issuer
	config *config.Config
	logger *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, hub *app.Hub, issuer *auth.Issuer, logger *slog.Logger) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		hub:    hub,
		issuer: issuer,
		config: cfg,
		logger: logger,
	}

	s.router.Use(gin.Recovery(), s.requestLogger(), cors())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.GetAddr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/stats", s.handleStats)

		rooms := api.Group("/rooms")
		{
			rooms.POST("", s.handleCreateRoom)
			rooms.GET("/:code", s.handleGetRoom)
			rooms.GET("/:code/exists", s.handleRoomExists)
			rooms.GET("/:code/qr", s.handleRoomQR)
			rooms.POST("/:code/players", s.handleJoinRoom)

			player := rooms.Group("/:code")
			player.Use(s.requirePlayer())
			{
				player.GET("/state", s.handleGetState)
				player.PUT("/settings", s.handleUpdateSettings)
			}
		}
	}

	// WebSocket
	s.router.GET("/ws", gin.WrapH(ws.NewHandler(s.hub, s.issuer, s.logger)))
}

// requestLogger logs every request
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// the socket lives on after its upgrade; logging its duration is noise
		if c.Request.URL.Path == "/ws" && !s.config.IsDevelopment() {
			return
		}
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// cors adds CORS headers and answers preflight requests
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

const identityKey = "identity"

// requirePlayer verifies the bearer token and that it belongs to the room in
// the path.
func (s *Server) requirePlayer() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.issuer.Verify(c.GetHeader("Authorization"))
		if err != nil {
			s.sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			c.Abort()
			return
		}
		if !strings.EqualFold(identity.RoomCode, c.Param("code")) {
			s.sendError(c, http.StatusForbidden, "WRONG_ROOM", "Token belongs to another room")
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}
