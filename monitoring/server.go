// Package monitoring serves the REST surface and the websocket endpoint
// over a single HTTP listener.
package monitoring

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"serialscope/bus"
	"serialscope/channel"
	"serialscope/config"
	"serialscope/decoder"
	"serialscope/macro"
	"serialscope/serial"
	"serialscope/store"
)

// Deps holds everything the handlers need, constructed by the entry point
// and injected here.
type Deps struct {
	Manager  *channel.Manager
	List     serial.Lister
	Registry *decoder.Registry
	Macros   *store.MacroStore
	Profiles *store.ProfileStore
	Executor *macro.Executor
	Events   *bus.Bus

	// Shutdown triggers graceful process termination; wired to the entry
	// point's cancel.
	Shutdown func()
}

// Server is the HTTP/WebSocket front end
type Server struct {
	cfg    *config.Config
	deps   *Deps
	hub    *Hub
	echo   *echo.Echo
	logger *slog.Logger
}

// NewServer creates the server and registers all routes
func NewServer(cfg *config.Config, deps *Deps, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		hub:    NewHub(deps, logger.With("component", "ws")),
		echo:   e,
		logger: logger,
	}

	if cfg.Auth.Enabled {
		e.Use(middleware.BasicAuth(func(user, pass string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.Auth.User)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.Auth.Password)) == 1
			return userOK && passOK, nil
		}))
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/ws", s.hub.Handle)

	e.GET("/ports", s.handleListPorts)
	e.POST("/connect", s.handleConnect)
	e.POST("/disconnect", s.handleDisconnect)
	e.GET("/status", s.handleStatus)
	e.POST("/clear", s.handleClear)
	e.POST("/export", s.handleExport)

	e.GET("/macros", s.handleListMacros)
	e.POST("/macros", s.handleCreateMacro)
	e.GET("/macros/:id", s.handleGetMacro)
	e.PUT("/macros/:id", s.handleUpdateMacro)
	e.DELETE("/macros/:id", s.handleDeleteMacro)
	e.POST("/macros/:id/run", s.handleRunMacro)

	e.GET("/profiles", s.handleListProfiles)
	e.POST("/profiles", s.handleCreateProfile)
	e.GET("/profiles/:id", s.handleGetProfile)
	e.PUT("/profiles/:id", s.handleUpdateProfile)
	e.DELETE("/profiles/:id", s.handleDeleteProfile)

	e.GET("/plugins", s.handleListPlugins)
	e.POST("/shutdown", s.handleShutdown)
}

// Start runs the hub and the listener. Blocks until the server stops.
func (s *Server) Start() error {
	s.hub.Run()

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.logger.Info("HTTP server listening", "addr", addr, "tls", s.cfg.TLS.Enabled)

	var err error
	if s.cfg.TLS.Enabled {
		err = s.echo.StartTLS(addr, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		err = s.echo.Start(addr)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the listener and the hub down
func (s *Server) Stop(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.hub.Stop()
	return err
}
