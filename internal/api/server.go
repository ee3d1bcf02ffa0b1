// Package api is the webhook ingress: a small HTTP server that verifies,
// filters, and enqueues pull request events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sentinelreview/sentinel/internal/jobqueue"
)

// Server hosts the webhook, health, and metrics endpoints.
type Server struct {
	echo  *echo.Echo
	host  string
	port  int
	queue jobqueue.Queue
}

func NewServer(host string, port int, webhookSecret string, queue jobqueue.Queue) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:  e,
		host:  host,
		port:  port,
		queue: queue,
	}

	h := &webhookHandler{secret: []byte(webhookSecret), queue: queue}

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/webhook", h.handle)

	return s
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("webhook ingress listening")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
