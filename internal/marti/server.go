// Package marti implements the broker's read-only HTTP control plane: the
// small set of Marti-compatible endpoints used for capability discovery.
package marti

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"omnitak/internal/registry"
)

// RouterView is the read-only slice of the Router the HTTP surface needs.
// Keeping it as an interface (rather than importing the Router type
// directly) avoids an import cycle between package main and this package.
type RouterView interface {
	Snapshot() []registry.EndPoint
	Count() int
}

// TLSStatus is the live TLS posture reported by GET /Marti/api/tls/config.
type TLSStatus struct {
	Enabled            bool
	ClientAuthRequired bool
}

const serverVersion = "1.0.0"

// Server is the Echo application serving the Marti routes.
type Server struct {
	echo   *echo.Echo
	router RouterView
	tls    TLSStatus
}

// New constructs the Marti HTTP app. tlsStatus is a snapshot taken at
// startup: the spec treats ServerConfig as immutable after startup, so
// there is no live reload to reflect here.
func New(router RouterView, tlsStatus TLSStatus) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, router: router, tls: tlsStatus}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Info("marti http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", c.RealIP(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/Marti/api/version", s.handleVersion)
	s.echo.GET("/Marti/api/clientEndPoints", s.handleClientEndPoints)
	s.echo.GET("/Marti/api/tls/config", s.handleTLSConfig)
}

// Run starts the HTTP listener on addr and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down marti http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), defaultDrainTimeout)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("marti http server stopped")
		return nil
	}
}

const defaultDrainTimeout = 2 * time.Second

type versionResponse struct {
	Version  string `json:"version"`
	Type     string `json:"type"`
	API      string `json:"api"`
	Hostname string `json:"hostname"`
}

func (s *Server) handleVersion(c echo.Context) error {
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		var err error
		hostname, err = os.Hostname()
		if err != nil || hostname == "" {
			hostname = "omnitak"
		}
	}
	return c.JSON(http.StatusOK, versionResponse{
		Version:  serverVersion,
		Type:     "OmniTAK-Server",
		API:      "2",
		Hostname: hostname,
	})
}

type clientEndPoint struct {
	UID      string `json:"uid"`
	Callsign string `json:"callsign"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
}

type clientEndPointsResponse struct {
	Clients []clientEndPoint `json:"clients"`
}

func (s *Server) handleClientEndPoints(c echo.Context) error {
	snapshot := s.router.Snapshot()
	clients := make([]clientEndPoint, 0, len(snapshot))
	for _, ep := range snapshot {
		ip, port := splitHostPort(ep.Endpoint)
		clients = append(clients, clientEndPoint{
			UID:      "",
			Callsign: "",
			IP:       ip,
			Port:     port,
		})
	}
	return c.JSON(http.StatusOK, clientEndPointsResponse{Clients: clients})
}

func splitHostPort(endpoint string) (host string, port int) {
	h, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, 0
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return h, 0
	}
	return h, portNum
}

type tlsConfigResponse struct {
	TLSEnabled         bool `json:"tls_enabled"`
	ClientAuthRequired bool `json:"client_auth_required"`
}

func (s *Server) handleTLSConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, tlsConfigResponse{
		TLSEnabled:         s.tls.Enabled,
		ClientAuthRequired: s.tls.ClientAuthRequired,
	})
}
