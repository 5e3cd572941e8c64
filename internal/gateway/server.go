// Package gateway exposes a run's state to its reviewer over HTTP and
// accepts the reviewer's actions.
package gateway

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

//go:embed static/index.html
var static embed.FS

const (
	headerETag        = "ETag"
	headerIfNoneMatch = "If-None-Match"
	headerCacheCtl    = "Cache-Control"
)

// Controller is the run the gateway drives. Actions must validate and
// apply atomically, returning *types.InvalidActionError when the current
// status does not accept them.
type Controller interface {
	Snapshot() types.Snapshot
	Approve(contextFiles []string) error
	Reject() error
	Feedback(text string) error
	UserInput(text string) error
}

// Config holds HTTP server configuration
type Config struct {
	Host        string
	Port        int
	PortRetries int
}

// Server is the approval gateway
type Server struct {
	echo     *echo.Echo
	ctrl     Controller
	logger   *zap.Logger
	config   *Config
	metrics  *Metrics
	listener net.Listener
}

// NewServer creates a gateway for ctrl
func NewServer(ctrl Controller, logger *zap.Logger, cfg *Config) (*Server, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("controller cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		ctrl:    ctrl,
		logger:  logger,
		config:  cfg,
		metrics: NewMetrics(),
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, headerIfNoneMatch},
		ExposeHeaders: []string{headerETag},
	}))
	e.Use(s.metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			// status polls are frequent; keep them out of info logs
			log := logger.Info
			if c.Path() == "/status" || c.Path() == "/metrics" {
				log = logger.Debug
			}
			log("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/approve", s.handleApprove)
	s.echo.POST("/reject", s.handleReject)
	s.echo.POST("/feedback", s.handleFeedback)
	s.echo.POST("/user_input", s.handleUserInput)
}

// ApproveRequest is the request body for POST /approve
type ApproveRequest struct {
	ContextFiles []string `json:"context_files"`
}

// FeedbackRequest is the request body for POST /feedback
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// UserInputRequest is the request body for POST /user_input
type UserInputRequest struct {
	UserInput string `json:"user_input"`
}

// ActionResponse is returned for an accepted action
type ActionResponse struct {
	Status types.Status `json:"status"`
}

// ErrorResponse is returned for a rejected request
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /healthz
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleIndex(c echo.Context) error {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, page)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStatus returns the run snapshot. The ETag is the state version, so
// an unchanged run answers 304.
func (s *Server) handleStatus(c echo.Context) error {
	snap := s.ctrl.Snapshot()
	etag := ETag(snap.Version)

	c.Response().Header().Set(headerETag, etag)
	c.Response().Header().Set(headerCacheCtl, "no-cache")
	if match := c.Request().Header.Get(headerIfNoneMatch); match != "" && match == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleApprove(c echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return s.badBody(c, "approve", err)
	}
	return s.respond(c, "approve", s.ctrl.Approve(req.ContextFiles))
}

func (s *Server) handleReject(c echo.Context) error {
	return s.respond(c, "reject", s.ctrl.Reject())
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return s.badBody(c, "feedback", err)
	}
	return s.respond(c, "feedback", s.ctrl.Feedback(req.Feedback))
}

func (s *Server) handleUserInput(c echo.Context) error {
	var req UserInputRequest
	if err := c.Bind(&req); err != nil {
		return s.badBody(c, "user_input", err)
	}
	return s.respond(c, "user_input", s.ctrl.UserInput(req.UserInput))
}

func (s *Server) badBody(c echo.Context, action string, err error) error {
	s.logger.Warn("invalid request body", zap.String("action", action), zap.Error(err))
	s.metrics.observeAction(action, "bad_request")
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
}

// respond maps an action outcome to its HTTP response
func (s *Server) respond(c echo.Context, action string, err error) error {
	var invalid *types.InvalidActionError
	switch {
	case err == nil:
		s.metrics.observeAction(action, "accepted")
		return c.JSON(http.StatusOK, ActionResponse{Status: s.ctrl.Snapshot().Status})
	case errors.As(err, &invalid):
		s.metrics.observeAction(action, "invalid_state")
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrInvalidInput):
		s.metrics.observeAction(action, "bad_request")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("action failed", zap.String("action", action), zap.Error(err))
		s.metrics.observeAction(action, "error")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// ETag renders a state version as an HTTP entity tag
func ETag(version uint64) string {
	return `"v` + strconv.FormatUint(version, 10) + `"`
}

// Metrics returns the gateway's metrics, for wiring run transitions
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Listen binds the first free port in [Port, Port+PortRetries). Port 0
// binds an ephemeral port.
func (s *Server) Listen() error {
	host := s.config.Host
	attempts := s.config.PortRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		port := s.config.Port + i
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			s.listener = ln
			s.echo.Listener = ln
			return nil
		}
		lastErr = err
		s.logger.Debug("port unavailable", zap.Int("port", port), zap.Error(err))
		if s.config.Port == 0 || port >= 65535 {
			break
		}
	}
	return fmt.Errorf("no free port from %d: %w", s.config.Port, lastErr)
}

// Addr returns the bound address, or "" before Listen
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the reviewer URL
func (s *Server) URL() string {
	addr := s.Addr()
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "" || host == "::" || host == "0.0.0.0") {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	return "http://" + addr
}

// Serve handles requests until Shutdown. It binds first if Listen was not
// called.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("starting approval gateway", zap.String("url", s.URL()))
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down approval gateway")
	return s.echo.Shutdown(ctx)
}
