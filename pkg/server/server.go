// Package server exposes the schedule-calls relay over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/natserract/zcrm-calls/pkg/audit"
	"github.com/natserract/zcrm-calls/pkg/config"
	"github.com/natserract/zcrm-calls/pkg/scheduler"
	"github.com/natserract/zcrm-calls/pkg/zoho"
	"go.uber.org/zap"
)

const (
	ScheduleCallsPath = "/api/schedule-calls"
	HealthPath        = "/healthz"

	// ShutdownTimeout bounds how long in-flight requests may run after a stop signal
	ShutdownTimeout = 30 * time.Second
)

// Scheduler handles one decoded schedule-calls request
type Scheduler interface {
	Handle(ctx context.Context, req scheduler.Request) scheduler.Outcome
}

// TokenStatus reports the state of the access token cache
type TokenStatus interface {
	Status() zoho.TokenStatus
}

type healthResponse struct {
	Status string           `json:"status"`
	Token  zoho.TokenStatus `json:"token"`
}

// Server is the inbound HTTP surface of the relay
type Server struct {
	echo      *echo.Echo
	scheduler Scheduler
	tokens    TokenStatus
	logger    *zap.Logger
}

// New builds the echo instance, its middleware chain and routes
func New(cfg *config.Config, sched Scheduler, tokens TokenStatus, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		scheduler: sched,
		tokens:    tokens,
		logger:    logger,
	}

	origins := cfg.CORSAllowOrigins
	if len(origins) == 0 {
		origins = []string{config.DefaultCORSAllowOrigins}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(audit.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Error("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("Request handled", fields...)
			return nil
		},
	}))

	e.POST(ScheduleCallsPath, s.scheduleCalls)
	e.GET(HealthPath, s.health)

	return s
}

// Handler returns the server as a plain http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) scheduleCalls(c echo.Context) error {
	var req scheduler.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, scheduler.Response{
			Message: scheduler.MessageInvalidRequest,
			Error:   bindError(err),
		})
	}

	outcome := s.scheduler.Handle(c.Request().Context(), req)
	return c.JSON(outcome.StatusCode(), outcome.Response())
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Token:  s.tokens.Status(),
	})
}

func bindError(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}
