package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"askme/config"
	"askme/web/handlers"
	"askme/web/middleware"
	"askme/web/services"
	"askme/web/static"
	"askme/web/templates/components"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services are what the HTTP layer is built on.
type Services struct {
	Chat     *services.ChatService
	Sessions *services.SessionService
	Stream   *services.StreamService
	Cleanup  *CleanupService
	Renderer components.AnswerRenderer
}

type Server struct {
	router *gin.Engine
	svc    Services
	logger *zap.Logger
	config *config.Config
}

func NewServer(svc Services, logger *zap.Logger, config *config.Config) *Server {
	// Set Gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		// Add logger to context
		c.Set("logger", logger)
		c.Next()
	})

	server := &Server{
		router: router,
		svc:    svc,
		logger: logger,
		config: config,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.StaticFS("/static", http.FS(static.Files))

	chatHandler := handlers.NewChatHandler(
		s.svc.Chat,
		s.svc.Sessions,
		s.svc.Stream,
		s.svc.Cleanup,
		s.svc.Renderer,
		s.config.SessionCookieSecure,
		s.logger,
	)
	homeHandler := handlers.NewHomeHandler(s.svc.Sessions, s.logger)

	app := s.router.Group("/")
	app.Use(middleware.SessionMiddleware(s.svc.Sessions, s.config.SessionCookieSecure, s.logger))

	// Web routes
	app.GET("/", homeHandler.Home)
	app.GET("/dashboard", chatHandler.Index)
	app.GET("/dashboard/:sessionID", chatHandler.LoadSession)
	app.POST("/sessions", chatHandler.NewSession)
	app.POST("/sessions/:sessionID/delete", chatHandler.DeleteSession)
	app.POST("/chat", chatHandler.SendMessage)
	app.GET("/chat/stream", chatHandler.StreamResponse)

	// JSON API
	api := app.Group("/api")
	api.GET("/history", chatHandler.GetHistory)
	api.DELETE("/history", chatHandler.ClearHistory)
	api.POST("/ask", chatHandler.Ask)
	api.GET("/sessions", chatHandler.ListSessions)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Web server failed to start", zap.Error(err))
			errCh <- err
		}
	}()

	// Wait for context cancellation
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	s.logger.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
