// Package server exposes the answer service over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drugcrow/crow/cmd/crow/cli/answer"
	"github.com/drugcrow/crow/cmd/crow/cli/logging"
)

const shutdownTimeout = 10 * time.Second

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (*answer.Answer, error)
}

// Options configure the server.
type Options struct {
	Name      string
	AuthToken string
	Version   string
}

// Server is the HTTP front of the answer service.
type Server struct {
	e       *echo.Echo
	svc     Answerer
	opts    Options
	logger  *zap.Logger
	started time.Time
}

// AnswerRequest is the body of POST /answer.
type AnswerRequest struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
}

// AnswerResponse is the success body of POST /answer.
type AnswerResponse struct {
	Data    string   `json:"data"`
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
	ID      string   `json:"id"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New builds the server and its routes. An empty AuthToken rejects every
// answer request.
func New(svc Answerer, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "DrugCrow"
	}
	s := &Server{
		e:       echo.New(),
		svc:     svc,
		opts:    opts,
		logger:  logger.Named("server"),
		started: time.Now(),
	}
	s.e.HideBanner = true
	s.e.HidePort = true

	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("duration", v.Latency),
				zap.String("remote_addr", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, zap.String("error", logging.SanitizeError(v.Error)))
			}
			s.logger.Info("HTTP request", fields...)
			return nil
		},
	}))
	s.e.Use(middleware.Recover())

	s.e.GET("/", s.handleRoot)
	s.e.GET("/health", s.handleHealth)
	s.e.POST("/answer", s.handleAnswer, middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator:  s.validToken,
		ErrorHandler: func(_ error, c echo.Context) error {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "Incorrect bearer token",
			})
		},
	}))
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("stopped")
		return nil
	})
	return g.Wait()
}

// Addr returns the bound listener address, or nil before Run listens.
func (s *Server) Addr() net.Addr { return s.e.ListenerAddr() }

func (s *Server) validToken(key string, _ echo.Context) (bool, error) {
	if s.opts.AuthToken == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.AuthToken)) == 1, nil
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Hi there! I am %s!", s.opts.Name),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "crow",
		"version": s.opts.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleAnswer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Request body must be JSON with a message field",
		})
	}

	a, err := s.svc.Answer(c.Request().Context(), req.Message)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) || errors.Is(err, answer.ErrSuspiciousQuestion) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_question",
				Message: err.Error(),
			})
		}
		s.logger.Error("answer failed", zap.String("error", logging.SanitizeError(err)))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "answer_failed",
			Message: logging.SanitizeError(err),
		})
	}

	columns := a.Columns
	if columns == nil {
		columns = []string{}
	}
	return c.JSON(http.StatusOK, AnswerResponse{
		Data:    a.Result,
		SQL:     a.SQL,
		Columns: columns,
		ID:      a.ID,
	})
}
