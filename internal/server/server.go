// Package server exposes the bridge over HTTP: the conversation webhook,
// the slide-command long poll, health checks and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/voiceforth/internal/logging"
	"github.com/mohammad-safakhou/voiceforth/internal/session"
)

// Conversation answers one webhook turn.
type Conversation interface {
	Handle(ctx context.Context, req session.Request) (session.Reply, error)
}

// SlideSource blocks until a slide command is available.
type SlideSource interface {
	Wait(ctx context.Context) (string, error)
}

// InterpreterStatus reports whether the interpreter process is alive.
type InterpreterStatus interface {
	Running() bool
}

// Options configures a Server.
type Options struct {
	CORSOrigins       []string
	ReadHeaderTimeout time.Duration
	// BodyLimit caps request bodies, in echo's size syntax ("16K"). Empty
	// uses DefaultBodyLimit.
	BodyLimit string
	// PollTimeout bounds a slide poll. Zero waits until a command arrives
	// or the client goes away.
	PollTimeout time.Duration
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// DefaultBodyLimit is far above any spoken utterance.
const DefaultBodyLimit = "16K"

type Server struct {
	echo   *echo.Echo
	conv   Conversation
	slides SlideSource
	interp InterpreterStatus

	pollTimeout time.Duration
	log         *zap.Logger

	// cancelRequests ends every request context on Shutdown.
	cancelRequests context.CancelFunc
}

func New(conv Conversation, slides SlideSource, interp InterpreterStatus, opts Options) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:           echo.New(),
		conv:           conv,
		slides:         slides,
		interp:         interp,
		pollTimeout:    opts.PollTimeout,
		log:            logging.OrNop(opts.Logger).Named("http"),
		cancelRequests: cancel,
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = opts.ReadHeaderTimeout
	e.Server.BaseContext = func(net.Listener) context.Context { return base }
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	bodyLimit := opts.BodyLimit
	if bodyLimit == "" {
		bodyLimit = DefaultBodyLimit
	}
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID))
			return nil
		},
	}))
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	e.POST("/", s.conversation)
	e.POST("/webhook", s.conversation)
	e.GET("/slides/poll", s.pollSlides)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/healthz/interpreter", s.interpreterHealth)
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	registerDocs(e)
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx ends. Request contexts are cancelled first: a slide poll never
// goes idle on its own.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRequests()
	return s.echo.Shutdown(ctx)
}

func (s *Server) interpreterHealth(c echo.Context) error {
	if s.interp != nil && s.interp.Running() {
		return c.JSON(http.StatusOK, map[string]bool{"running": true})
	}
	return c.JSON(http.StatusServiceUnavailable, map[string]bool{"running": false})
}

// handleError is the unified HTTP error handler: structured JSON body plus
// one log line per failed request.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("remote", c.RealIP()),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
	} else {
		s.log.Debug("request rejected", fields...)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}
