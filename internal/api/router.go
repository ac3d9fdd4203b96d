// Package api assembles the daemon's admin HTTP surface.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/api/handlers"
	"github.com/veymont/hotbackup/internal/api/middleware"
	"github.com/veymont/hotbackup/internal/hotbackup"
	"github.com/veymont/hotbackup/internal/metrics"
)

// NewRouter builds the admin API router.
func NewRouter(svc *hotbackup.Service, registry *hotbackup.Registry, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	v1 := r.Group("/api/v1")
	handlers.NewBackupHandler(svc, logger).RegisterRoutes(v1)

	return r
}
