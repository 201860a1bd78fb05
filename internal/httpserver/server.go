package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Createyouracccount/last-mike/internal/agent"
	"github.com/Createyouracccount/last-mike/internal/config"
	"github.com/Createyouracccount/last-mike/internal/metrics"
	twiliosig "github.com/Createyouracccount/last-mike/internal/middleware"
)

// Server bundles HTTP router and dependencies.
type Server struct {
	Router *echo.Echo

	cfg     config.Config
	service *agent.Service
}

// New constructs the HTTP server with health, session API and Twilio routes.
func New(cfg config.Config, service *agent.Service) *Server {
	e := newEcho()
	s := &Server{Router: e, cfg: cfg, service: service}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := e.Group("/v1", requireAuth(cfg.AuthPassword))
	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.POST("/sessions/:id/turns", s.postTurn)
	api.DELETE("/sessions/:id", s.deleteSession)

	tw := e.Group("/twilio", twiliosig.TwilioAuth(cfg.TwilioAuthToken, cfg.PublicBaseURL))
	tw.POST("/voice", s.twilioVoice)
	tw.POST("/gather", s.twilioGather)
	tw.POST("/status", s.twilioStatus)
	return s
}

// WithMetrics records HTTP traffic and serves /metrics.
func (s *Server) WithMetrics(m *metrics.Collector) *Server {
	s.Router.Use(m.Middleware())
	s.Router.GET("/metrics", echo.WrapHandler(m.Handler()))
	return s
}

// WithStream mounts the voice WebSocket at /stream behind the API password.
func (s *Server) WithStream(h echo.HandlerFunc) *Server {
	s.Router.GET("/stream", h, requireAuth(s.cfg.AuthPassword))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
