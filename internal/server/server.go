// Package server exposes the application's HTTP surface: the export
// endpoint, a health check, a live sync-status WebSocket, and static file
// serving for the UI bundle. Report rendering itself is out of process
// concern and injected as a Renderer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/markbook-app/markbook/internal/export"
	"github.com/markbook-app/markbook/internal/store"
	"github.com/markbook-app/markbook/internal/syncer"
)

// Renderer turns an export payload into a downloadable document. The
// returned content type names the document format.
type Renderer interface {
	Render(ctx context.Context, p *export.Payload) (data []byte, contentType string, err error)
}

// StatusSource is the sync controller surface the server needs.
type StatusSource interface {
	Status() syncer.Status
	Subscribe() (<-chan syncer.Status, func())
}

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8374).
	Port int

	// StaticDir, when set, is served at the root path.
	StaticDir string

	// Logger for request and WebSocket activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8374,
		Logger: log.Default(),
	}
}

// Server is the HTTP front of the application.
type Server struct {
	echo     *echo.Echo
	builder  *export.Builder
	renderer Renderer
	status   StatusSource
	config   *Config
}

// New creates a server over the given store. renderer and status may be
// nil; the corresponding endpoints then report unavailability.
func New(st *store.Store, renderer Renderer, status StatusSource, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		builder:  export.NewBuilder(st),
		renderer: renderer,
		status:   status,
		config:   config,
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/api/status", s.handleStatus)
	e.GET("/ws/status", s.handleStatusWS)
	e.POST("/api/export", s.handleExport)
	if config.StaticDir != "" {
		e.Static("/", config.StaticDir)
	}
	return s
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.config.Logger.Printf("Listening on %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	if s.status == nil {
		return c.JSON(http.StatusOK, syncer.Status{State: syncer.StateIdle})
	}
	return c.JSON(http.StatusOK, s.status.Status())
}

// ExportRequest selects which report to render.
type ExportRequest struct {
	Type        string `json:"type"` // "lesson" or "class"
	ClassroomID string `json:"classroom_id"`
	LessonID    int    `json:"lesson_id,omitempty"`
}

func (s *Server) handleExport(c echo.Context) error {
	if s.renderer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no renderer configured")
	}

	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed export request")
	}

	var (
		payload *export.Payload
		err     error
	)
	switch req.Type {
	case "lesson":
		payload, err = s.builder.Lesson(req.ClassroomID, req.LessonID)
	case "class":
		payload, err = s.builder.Class(req.ClassroomID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown export type %q", req.Type))
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	data, contentType, err := s.renderer.Render(c.Request().Context(), payload)
	if err != nil {
		s.config.Logger.Printf("Export render failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "render failed")
	}
	return c.Blob(http.StatusOK, contentType, data)
}

// handleStatusWS streams sync status transitions. The current status is
// sent on connect, then every transition until the client goes away.
func (s *Server) handleStatusWS(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.config.Logger.Printf("WebSocket upgrade failed: %v", err)
		return nil
	}
	defer conn.CloseNow()

	ctx := c.Request().Context()

	if s.status == nil {
		_ = wsjson.Write(ctx, conn, syncer.Status{State: syncer.StateIdle})
		conn.Close(websocket.StatusNormalClosure, "no sync controller")
		return nil
	}

	ch, cancel := s.status.Subscribe()
	defer cancel()

	if err := wsjson.Write(ctx, conn, s.status.Status()); err != nil {
		return nil
	}

	// Reads are discarded; the read loop only notices disconnects.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return nil
		case <-readDone:
			return nil
		case st := <-ch:
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, st)
			cancelWrite()
			if err != nil {
				return nil
			}
		}
	}
}
