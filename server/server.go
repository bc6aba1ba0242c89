// Package server hosts the HTTP surface: the v1 REST API, health check and
// Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nestmate/nestmate/citystats"
	"github.com/nestmate/nestmate/indexer"
	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/match"
	apiv1 "github.com/nestmate/nestmate/server/router/api/v1"
	"github.com/nestmate/nestmate/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

func NewServer(_ context.Context, profile *profile.Profile, store *store.Store, engine *match.Engine, metrics *match.Metrics, idx *indexer.Indexer, stats *citystats.Aggregator) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))

	s := &Server{
		Profile:    profile,
		Store:      store,
		echoServer: e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	apiv1.NewAPIV1Service(profile, store, engine, idx, stats).Register(e)

	return s, nil
}

// Start begins serving in a background goroutine. The returned error only
// covers listener setup; runtime errors surface through the echo logger.
func (s *Server) Start(_ context.Context) error {
	if s.Profile.UNIXSock != "" {
		listener, err := net.Listen("unix", s.Profile.UNIXSock)
		if err != nil {
			return errors.Wrapf(err, "listen on unix socket %s", s.Profile.UNIXSock)
		}
		s.echoServer.Listener = listener
		go func() {
			if err := s.echoServer.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("server stopped", slog.Any("err", err))
			}
		}()
		return nil
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.Any("err", err))
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.Any("err", err))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.Any("err", err))
	}
	slog.Info("nestmate stopped properly")
}

// Echo exposes the router for handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}
