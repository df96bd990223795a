package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ussbot/internal/repositories"
)

// StatusHandler exposes the operational probes: liveness of the data
// store and task counters. Not part of the bot's chat surface.
type StatusHandler struct {
	db      *sql.DB
	repo    repositories.TaskRepository
	logger  *zap.Logger
	started time.Time
}

func NewStatusHandler(db *sql.DB, repo repositories.TaskRepository, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{db: db, repo: repo, logger: logger, started: time.Now()}
}

// GET /healthz
func (h *StatusHandler) Health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/stats
func (h *StatusHandler) Stats(c *gin.Context) {
	open, done, err := h.repo.CountByStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("stats query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks_open":     open,
		"tasks_done":     done,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
