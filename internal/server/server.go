package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/approval"
	"github.com/dagbolade/toolguard/internal/audit"
	"github.com/dagbolade/toolguard/internal/auth"
	"github.com/dagbolade/toolguard/internal/mediator"
	"github.com/dagbolade/toolguard/internal/store"
)

// Server wires the HTTP API: the mediation endpoint, policy management,
// audit reads, and the confirmation surface.
type Server struct {
	echo   *echo.Echo
	config Config
	wsHub  *Hub
}

func New(cfg Config, med *mediator.Mediator, rules store.RuleStore, aud audit.Store, queue approval.Queue, authManager *auth.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		config: cfg,
	}

	s.setupMiddleware(authManager)
	s.setupRoutes(med, rules, aud, queue, authManager)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Info().Int("port", s.config.Port).Msg("starting HTTP server")

	s.echo.Server.ReadTimeout = time.Duration(s.config.ReadTimeout) * time.Second
	s.echo.Server.WriteTimeout = time.Duration(s.config.WriteTimeout) * time.Second

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	if s.wsHub != nil {
		s.wsHub.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) setupMiddleware(authManager *auth.Manager) {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	s.echo.Use(authManager.Middleware())
}

func (s *Server) setupRoutes(med *mediator.Mediator, rules store.RuleStore, aud audit.Store, queue approval.Queue, authManager *auth.Manager) {
	invokeHandler := NewInvokeHandler(med)
	policyHandler := NewPolicyHandler(rules)
	auditHandler := NewAuditHandler(aud)
	confirmationHandler := NewConfirmationHandler(queue)
	authHandler := auth.NewHandler(authManager)

	wsHandler := NewWSHandler(queue, authManager)
	s.wsHub = wsHandler.Hub()

	// Public
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/login", authHandler.Login)

	// Everything below goes through the auth middleware.
	s.echo.GET("/me", authHandler.Me)

	s.echo.POST("/invoke", invokeHandler.Invoke)

	s.echo.GET("/policies", policyHandler.List)
	s.echo.POST("/policies", policyHandler.Create)
	s.echo.GET("/policies/:id", policyHandler.Get)
	s.echo.DELETE("/policies/:id", policyHandler.Delete)
	s.echo.POST("/policies/:id/rules", policyHandler.CreateRule)
	s.echo.PUT("/policies/:id/rules/:ruleID", policyHandler.UpdateRule)
	s.echo.DELETE("/policies/:id/rules/:ruleID", policyHandler.DeleteRule)

	s.echo.GET("/audit", auditHandler.List)
	s.echo.GET("/audit/:id", auditHandler.Get)
	s.echo.GET("/audit/faults", auditHandler.ListFaults)

	s.echo.GET("/confirmations", confirmationHandler.ListPending)
	s.echo.POST("/confirmations/:id/approve", confirmationHandler.Approve, authManager.RequireRole(auth.RoleApprover))
	s.echo.POST("/confirmations/:id/reject", confirmationHandler.Reject, authManager.RequireRole(auth.RoleApprover))

	s.echo.GET("/ws", wsHandler.HandleWebSocket)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
