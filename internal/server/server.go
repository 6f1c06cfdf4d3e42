// Package server exposes the analytics read surface and the streaming
// websocket endpoints over HTTP.
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/analytics"
	"github.com/Sadiqib0/Citypulse/internal/bus"
	"github.com/Sadiqib0/Citypulse/internal/models"
	"github.com/Sadiqib0/Citypulse/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires routes to the analytics engine and the streaming layer.
type Server struct {
	router    *gin.Engine
	analytics *analytics.Service
	manager   *stream.Manager
	bridge    *stream.Bridge
	log       *zap.Logger
}

// New builds the router.
func New(a *analytics.Service, m *stream.Manager, b *stream.Bridge, log *zap.Logger) *Server {
	s := &Server{
		router:    gin.New(),
		analytics: a,
		manager:   m,
		bridge:    b,
		log:       log,
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler returns the http.Handler for the process to serve.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/analytics/overview", s.overview)
		v1.GET("/analytics/traffic", s.trafficSummary)
		v1.GET("/analytics/weather", s.weatherSummary)
		v1.GET("/analytics/anomalies/:sensor_id", s.anomalies)
		v1.GET("/analytics/predictions/:event_type", s.predictions)
	}

	s.router.GET("/ws/events", s.eventsStream)
	s.router.GET("/ws/sensors/:sensor_id", s.sensorStream)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"connections": s.manager.Len(),
	})
}

func (s *Server) overview(c *gin.Context) {
	stats, err := s.analytics.Overview(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) trafficSummary(c *gin.Context) {
	stats, err := s.analytics.TrafficSummary(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) weatherSummary(c *gin.Context) {
	stats, err := s.analytics.WeatherSummary(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) anomalies(c *gin.Context) {
	lookback, err := strconv.Atoi(c.DefaultQuery("lookback_minutes", "60"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lookback_minutes must be an integer"})
		return
	}

	result, err := s.analytics.DetectAnomalies(c.Request.Context(), c.Param("sensor_id"), lookback)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": result})
}

func (s *Server) predictions(c *gin.Context) {
	horizon, err := strconv.Atoi(c.DefaultQuery("horizon_hours", "24"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "horizon_hours must be an integer"})
		return
	}

	result, err := s.analytics.Predict(c.Request.Context(), models.EventType(c.Param("event_type")), horizon)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": result})
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, analytics.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.log.Error("analytics request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// eventsStream serves the general event stream: every domain event
// channel, via the events wildcard.
func (s *Server) eventsStream(c *gin.Context) {
	s.serveStream(c, bus.EventsWildcard)
}

// sensorStream serves one sensor's exclusive channel.
func (s *Server) sensorStream(c *gin.Context) {
	sensorID := c.Param("sensor_id")
	if sensorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sensor id is required"})
		return
	}
	s.serveStream(c, bus.SensorChannel(sensorID))
}

// serveStream upgrades the connection and runs the session until the
// client goes away. Registration happens only after the handshake
// completes; teardown detaches the bridge before removing the session.
func (s *Server) serveStream(c *gin.Context, channel string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := stream.NewSession(channel)
	s.manager.Add(session)

	detach, err := s.bridge.Attach(channel)
	if err != nil {
		s.log.Error("bridge attach failed", zap.String("channel", channel), zap.Error(err))
		s.manager.Remove(session.ID)
		conn.Close()
		return
	}

	go session.WritePump(conn, s.log)
	session.ReadPump(conn, s.log)

	detach()
	s.manager.Remove(session.ID)
}
