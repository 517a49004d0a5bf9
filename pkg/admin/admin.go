// Package admin implements the read-only HTTP introspection surface
// alongside the wire protocol: /health, and /api/v1/health, /api/v1/stats,
// /api/v1/channels and /api/v1/sessions.
// None of these mutate link state — they only read the Collector, the
// channel endpoints' Connected status, and the optional history Store.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rethos/rethos/pkg/chanconfig"
	"github.com/rethos/rethos/pkg/channel"
	"github.com/rethos/rethos/pkg/stats"
	"github.com/rethos/rethos/pkg/store"
)

// Server wraps the Gin engine serving REthos's introspection endpoints.
type Server struct {
	engine    *gin.Engine
	collector *stats.Collector
	channels  [stats.NumChannels]*channel.Endpoint
	chanMeta  *chanconfig.Config
	st        *store.Store // nil disables /sessions
}

// New builds the admin HTTP server.
func New(collector *stats.Collector, channels [stats.NumChannels]*channel.Endpoint, chanMeta *chanconfig.Config, st *store.Store) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	setupMiddleware(engine)

	s := &Server{
		engine:    engine,
		collector: collector,
		channels:  channels,
		chanMeta:  chanMeta,
		st:        st,
	}
	s.setupRoutes()
	return s
}

func setupMiddleware(r *gin.Engine) {
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Origin", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("admin request")
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/stats", s.handleStats)
		v1.GET("/channels", s.handleChannels)
		v1.GET("/sessions", s.handleSessions)
	}
}

// Run starts the HTTP server at addr. It blocks until the server stops.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	snap := s.collector.TakeSnapshot()
	c.JSON(http.StatusOK, snap)
}

type channelInfo struct {
	Channel     uint8  `json:"channel"`
	Connected   bool   `json:"connected"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleChannels(c *gin.Context) {
	infos := make([]channelInfo, 0, stats.NumChannels)
	for i := 0; i < stats.NumChannels; i++ {
		ep := s.channels[i]
		info := channelInfo{Channel: uint8(i)}
		if ep != nil {
			info.Connected = ep.Connected()
		}
		if s.chanMeta != nil {
			if entry, ok := s.chanMeta.Lookup(uint8(i)); ok {
				info.Name = entry.Name
				info.Description = entry.Description
			}
		}
		infos = append(infos, info)
	}
	c.JSON(http.StatusOK, gin.H{"channels": infos})
}

func (s *Server) handleSessions(c *gin.Context) {
	if s.st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history persistence is disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	sessions, err := s.st.RecentSessions(ctx, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
