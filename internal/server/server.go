package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"banditlab/internal/arm"
	"banditlab/internal/engine"
	"banditlab/internal/strategy"
)

// Server exposes one live session over HTTP. The session itself is not
// safe for concurrent rounds, so every mutating handler holds the mutex.
type Server struct {
	mu      sync.Mutex
	session *engine.Session
	logger  *slog.Logger
	hub     *hub
}

func New(session *engine.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		session: session,
		logger:  logger,
		hub:     newHub(logger),
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	{
		api.POST("/arms", s.handleConfigureArms)
		api.POST("/strategies", s.handleSetStrategies)
		api.POST("/pull", s.handlePull)
		api.POST("/hardmode", s.handleHardMode)
		api.POST("/permute", s.handlePermute)
		api.POST("/reset", s.handleReset)
		api.GET("/series", s.handleSeries)
		api.GET("/strategy-descriptors", s.handleDescriptors)
		api.GET("/health", s.handleHealth)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", s.handleWebSocket)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type configureArmsRequest struct {
	Arms []arm.Config `json:"arms"`
}

func (s *Server) handleConfigureArms(c *gin.Context) {
	var req configureArmsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	warnings, err := s.session.ConfigureArms(req.Arms)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "warnings": warnings})
		return
	}
	c.JSON(http.StatusOK, gin.H{"arms": s.session.ArmConfigs(), "warnings": warnings})
}

type setStrategiesRequest struct {
	Strategies []string                    `json:"strategies"`
	Options    map[string]strategy.Options `json:"options,omitempty"`
}

func (s *Server) handleSetStrategies(c *gin.Context) {
	var req setStrategiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	warnings, err := s.session.SetActiveStrategies(req.Strategies, req.Options)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, engine.ErrEmptyStrategySet) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error(), "warnings": warnings})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":   s.session.ActiveStrategies(),
		"warnings": warnings,
	})
}

type pullRequest struct {
	Arm string `json:"arm"`
}

func (s *Server) handlePull(c *gin.Context) {
	var req pullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	start := time.Now()
	result, err := s.session.RecordUserPull(req.Arm)
	s.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, w := range result.Warnings {
		s.logger.Warn("strategy dropped", "reason", w)
	}
	observeRound(result, time.Since(start))
	s.hub.broadcast(result)
	c.JSON(http.StatusOK, result)
}

type hardModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleHardMode(c *gin.Context) {
	var req hardModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.session.SetHardMode(req.Enabled)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"hard_mode": req.Enabled})
}

func (s *Server) handlePermute(c *gin.Context) {
	s.mu.Lock()
	configs := s.session.ForcePermutation()
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"arms": configs})
}

func (s *Server) handleReset(c *gin.Context) {
	s.mu.Lock()
	warnings, err := s.session.Reset()
	s.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "warnings": warnings})
		return
	}
	c.JSON(http.StatusOK, gin.H{"round": 0, "warnings": warnings})
}

func (s *Server) handleSeries(c *gin.Context) {
	s.mu.Lock()
	series := s.session.Series()
	order := s.session.SeriesIDs()
	round := s.session.Round()
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"round":  round,
		"order":  order,
		"series": series,
	})
}

func (s *Server) handleDescriptors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": strategy.Descriptors()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
