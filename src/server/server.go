package server

import (
	"fmt"
	"strings"
	"sync"

	"chart-hub/src/charthub"
	"chart-hub/src/logger"
	"chart-hub/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// ChartAPIServer
// -----------------------------------------------------------------------------

type ChartAPIServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine
	hub    *charthub.ChartHub

	// WebSocket clients, addressed by connection id
	clientsMutex sync.RWMutex
	clients      map[string]*Client
	register     chan *Client
	unregister   chan *Client
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewChartAPIServer(cfg *models.MConfig, logger *logger.Logger) *ChartAPIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &ChartAPIServer{
		Config:     cfg,
		Logger:     logger,
		engine:     gin.Default(),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

// AttachHub wires the chart hub in after construction; the hub needs the
// server as its publisher, so neither can be built first with the other
// already in hand.
func (s *ChartAPIServer) AttachHub(hub *charthub.ChartHub) {
	s.hub = hub
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *ChartAPIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/chart/health", s.getChartHealth)
	s.engine.GET("/api/chart/health/logs", s.getChartHealthLogs)
	s.engine.GET("/api/chart/health/stats", s.getChartHealthStats)
	s.engine.GET("/api/chart/health/:symbol", s.getChartHealthSymbol)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *ChartAPIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.runClientRegistry()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

func (s *ChartAPIServer) Stop() error {
	close(s.register)
	close(s.unregister)
	return nil
}

// -----------------------------------------------------------------------------
// Client registry loop
// -----------------------------------------------------------------------------

func (s *ChartAPIServer) runClientRegistry() {
	for {
		select {
		case client, ok := <-s.register:
			if !ok {
				return
			}
			s.clientsMutex.Lock()
			s.clients[client.ID] = client
			s.clientsMutex.Unlock()

		case client, ok := <-s.unregister:
			if !ok {
				return
			}
			s.clientsMutex.Lock()
			if _, exists := s.clients[client.ID]; exists {
				delete(s.clients, client.ID)
				close(client.send)
			}
			s.clientsMutex.Unlock()

			if s.hub != nil {
				s.hub.HandleDisconnect(client.ID)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// IPublisher implementation
// -----------------------------------------------------------------------------

// SendTo delivers one event to one connection. A full send buffer drops the
// message rather than blocking the hub; snapshots re-sync slow clients on
// their next focus.
func (s *ChartAPIServer) SendTo(connectionID string, event string, payload interface{}) {
	s.clientsMutex.RLock()
	client, ok := s.clients[connectionID]
	s.clientsMutex.RUnlock()
	if !ok {
		return
	}

	message := models.MOutboundMessage{Event: event, Payload: payload}
	select {
	case client.send <- message:
	default:
		s.Logger.Warning("Dropping %s for slow client %s", event, connectionID)
	}
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *ChartAPIServer) getHealth(c *gin.Context) {
	s.clientsMutex.RLock()
	connections := len(s.clients)
	s.clientsMutex.RUnlock()

	c.JSON(200, gin.H{
		"status":      "ok",
		"connections": connections,
		"buffers":     len(s.hub.BufferStats()),
	})
}

// -----------------------------------------------------------------------------

func (s *ChartAPIServer) getConfig(c *gin.Context) {
	c.JSON(200, gin.H{
		"timeframes":        charthub.TimeframeKeys(),
		"default_timeframe": s.Config.Chart.DefaultTimeframe,
		"max_buffer_bars":   s.Config.Chart.MaxBufferBars,
	})
}

// -----------------------------------------------------------------------------

func (s *ChartAPIServer) getChartHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"buffers": s.hub.QualityMetrics(),
	})
}

// -----------------------------------------------------------------------------

func (s *ChartAPIServer) getChartHealthLogs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			limit = 50
		}
	}
	c.JSON(200, gin.H{
		"events": s.hub.QualityLogEntries(limit),
	})
}

// -----------------------------------------------------------------------------

func (s *ChartAPIServer) getChartHealthStats(c *gin.Context) {
	c.JSON(200, gin.H{
		"buffers": s.hub.BufferStats(),
	})
}

// -----------------------------------------------------------------------------

func (s *ChartAPIServer) getChartHealthSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	metrics := s.hub.QualityMetricsForSymbol(symbol)
	if timeframe := c.Query("timeframe"); timeframe != "" {
		filtered := metrics[:0]
		for _, m := range metrics {
			if m.Timeframe == timeframe {
				filtered = append(filtered, m)
			}
		}
		metrics = filtered
	}
	if len(metrics) == 0 {
		c.JSON(404, gin.H{"error": fmt.Sprintf("no active chart for %s", symbol)})
		return
	}
	c.JSON(200, gin.H{
		"symbol":  strings.ToUpper(strings.TrimSpace(symbol)),
		"buffers": metrics,
	})
}
