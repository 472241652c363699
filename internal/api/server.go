package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NehoraiHadad/podcasto-engine/internal/billing"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
)

// Dependency is one backing service the health endpoints probe.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server exposes the admin HTTP API: health probes, Prometheus metrics, and
// per-episode cost and stage inspection.
type Server struct {
	episodes   storage.EpisodeRepository
	events     storage.CostEventRepository
	summaries  storage.CostSummaryRepository
	logs       storage.ProcessingLogRepository
	aggregator *billing.Aggregator
	deps       []Dependency
	startedAt  time.Time

	server *http.Server
	log    *slog.Logger
}

// NewServer creates the admin API server.
func NewServer(
	episodes storage.EpisodeRepository,
	events storage.CostEventRepository,
	summaries storage.CostSummaryRepository,
	logs storage.ProcessingLogRepository,
	aggregator *billing.Aggregator,
	deps []Dependency,
	port int,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		episodes:   episodes,
		events:     events,
		summaries:  summaries,
		logs:       logs,
		aggregator: aggregator,
		deps:       deps,
		startedAt:  time.Now().UTC(),
		log:        slog.Default().With("component", "api"),
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/health/detailed", s.handleHealthDetailed)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/episodes/:id/costs", s.handleEpisodeCosts)
		apiGroup.GET("/episodes/:id/stages", s.handleEpisodeStages)
		apiGroup.POST("/episodes/:id/aggregate", s.handleAggregate)
		apiGroup.GET("/usage/daily", s.handleDailyUsage)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Admin API listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	for _, dep := range s.deps {
		if err := dep.Check(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"failed": dep.Name,
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHealthDetailed(c *gin.Context) {
	type depStatus struct {
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}

	healthy := true
	statuses := make([]depStatus, 0, len(s.deps))
	for _, dep := range s.deps {
		ds := depStatus{Name: dep.Name, Healthy: true}
		if err := dep.Check(c.Request.Context()); err != nil {
			ds.Healthy = false
			ds.Error = err.Error()
			healthy = false
		}
		statuses = append(statuses, ds)
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":         status,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"dependencies":   statuses,
	})
}

// handleEpisodeCosts returns the stored summary plus the raw event log. The
// summary may lag the events; the events are the source of truth.
func (s *Server) handleEpisodeCosts(c *gin.Context) {
	episodeID := c.Param("id")
	ctx := c.Request.Context()

	if _, err := s.episodes.GetByID(ctx, episodeID); err != nil {
		s.renderEpisodeError(c, episodeID, err)
		return
	}

	summary, err := s.summaries.GetEpisode(ctx, episodeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	events, err := s.events.ListByEpisode(ctx, episodeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"episode_id": episodeID,
		"events":     renderEvents(events),
	}
	if summary != nil {
		resp["summary"] = renderEpisodeSummary(summary)
	}
	c.JSON(http.StatusOK, resp)
}

// handleEpisodeStages recomputes per-stage state from the processing log
// instead of trusting the episode row's denormalized pointer.
func (s *Server) handleEpisodeStages(c *gin.Context) {
	episodeID := c.Param("id")
	ctx := c.Request.Context()

	ep, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		s.renderEpisodeError(c, episodeID, err)
		return
	}

	logs, err := s.logs.ListByEpisode(ctx, episodeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"episode_id": episodeID,
		"status":     ep.Status,
		"stages":     renderStages(logs),
		"attempts":   renderAttempts(logs),
	})
}

func (s *Server) handleAggregate(c *gin.Context) {
	episodeID := c.Param("id")
	ctx := c.Request.Context()

	if _, err := s.episodes.GetByID(ctx, episodeID); err != nil {
		s.renderEpisodeError(c, episodeID, err)
		return
	}

	summary, err := s.aggregator.AggregateForEpisode(ctx, episodeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, renderEpisodeSummary(summary))
}

func (s *Server) handleDailyUsage(c *gin.Context) {
	day := c.Query("day")
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
		return
	}

	rows, err := s.events.DailyUsage(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"day":      day,
		"services": renderDailyUsage(rows),
	})
}

func (s *Server) renderEpisodeError(c *gin.Context, episodeID string, err error) {
	if errors.Is(err, storage.ErrEpisodeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "episode not found", "episode_id": episodeID})
		return
	}
	s.log.Error("Episode lookup failed", "episode_id", episodeID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
