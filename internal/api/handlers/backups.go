// Package handlers implements the admin API's HTTP endpoints.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/history"
	"github.com/veymont/hotbackup/internal/hotbackup"
)

// BackupHandler handles backup-related HTTP endpoints.
type BackupHandler struct {
	svc    *hotbackup.Service
	logger zerolog.Logger
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(svc *hotbackup.Service, logger zerolog.Logger) *BackupHandler {
	return &BackupHandler{
		svc:    svc,
		logger: logger.With().Str("component", "backup_handler").Logger(),
	}
}

// RegisterRoutes registers backup routes on the given router group.
func (h *BackupHandler) RegisterRoutes(r *gin.RouterGroup) {
	backups := r.Group("/backups")
	{
		backups.POST("", h.StartBackup)
		backups.GET("", h.ListAttempts)
		backups.GET("/status", h.GetStatus)
		backups.PUT("/throttle", h.SetThrottle)
		backups.GET("/:id", h.GetAttempt)
	}
}

type startBackupRequest struct {
	Destination string `json:"destination" binding:"required"`
}

// StartBackup launches a backup attempt in the background.
// POST /api/v1/backups
func (h *BackupHandler) StartBackup(c *gin.Context) {
	var req startBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "destination is required"})
		return
	}

	attempt, err := h.svc.Begin(c.Request.Context(), req.Destination)
	if err != nil {
		h.logger.Error().Err(err).Str("destination", req.Destination).Msg("start backup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, attempt)
}

// GetStatus returns the running backup's progress snapshot.
// GET /api/v1/backups/status
func (h *BackupHandler) GetStatus(c *gin.Context) {
	doc, err := h.svc.Status()
	if err != nil {
		if errors.Is(err, hotbackup.ErrNoBackupRunning) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

type throttleRequest struct {
	BytesPerSecond *int64 `json:"bytes_per_second" binding:"required"`
}

// SetThrottle caps the engine copy rate.
// PUT /api/v1/backups/throttle
func (h *BackupHandler) SetThrottle(c *gin.Context) {
	var req throttleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bytes_per_second is required"})
		return
	}

	if err := h.svc.Throttle(*req.BytesPerSecond); err != nil {
		if errors.Is(err, hotbackup.ErrNegativeThrottle) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListAttempts returns the most recent attempt journal entries.
// GET /api/v1/backups
func (h *BackupHandler) ListAttempts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	attempts, err := h.svc.Attempts(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list backup attempts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if attempts == nil {
		attempts = []*hotbackup.Attempt{}
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// GetAttempt returns one attempt journal entry.
// GET /api/v1/backups/:id
func (h *BackupHandler) GetAttempt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt id"})
		return
	}

	attempt, err := h.svc.Attempt(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrAttemptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
			return
		}
		h.logger.Error().Err(err).Stringer("attempt", id).Msg("get backup attempt")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, attempt)
}
