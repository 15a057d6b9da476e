package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/mediconsult/internal/api/auth"
	"github.com/mediconsult/internal/pipeline"
	"github.com/mediconsult/internal/registry"
	"github.com/mediconsult/internal/ws"
)

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	host     string
	port     int
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

// NewServer creates a new API server
func NewServer(host string, port int, reg *registry.Registry, pipe *pipeline.Pipeline, wsHandler *ws.Handler, jwtSecret string, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:     e,
		host:     host,
		port:     port,
		registry: reg,
		pipeline: pipe,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	server.setupRoutes(wsHandler, jwtSecret)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(wsHandler *ws.Handler, jwtSecret string) {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// Websocket conversation endpoint authenticates inside the handler so
	// browser clients can pass the token as a query parameter.
	s.echo.GET("/ws/chat", wsHandler.Serve)

	// API v1 group
	v1 := s.echo.Group("/api/v1", auth.RequireAuth(jwtSecret))

	v1.GET("/conversations", s.listConversations)
	v1.GET("/conversations/:id", s.getConversation)
	v1.GET("/conversations/:id/messages", s.listMessages)
	v1.POST("/conversations/:id/close", s.closeConversation)
	v1.DELETE("/conversations/:id", s.deleteConversation)
}

// Start begins the API server and blocks until an interrupt signal, then
// shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		addr := fmt.Sprintf("%s:%d", s.host, s.port)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
