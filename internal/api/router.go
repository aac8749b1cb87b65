package api

import (
	"net/http"
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/health"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/mapper"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the internal admin HTTP surface the external Gateway
// calls into. It is not the Gateway itself: callers are trusted operators
// and the Gateway process, not end users.
func NewRouter(m *mapper.Mapper, pool *poolmanager.Manager, mon *health.Monitor) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())

	// Global health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: formatTime(time.Now()),
		})
	})

	h := NewPoolHandler(m, pool, mon)

	v1 := r.Group("/api/v1")
	{
		bots := v1.Group("/bots/:instanceId")
		{
			bots.POST("/allocate", h.Allocate)
			bots.POST("/start", h.Start)
			bots.POST("/restart", h.Restart)
			bots.POST("/reconfigure", h.Reconfigure)
			bots.POST("/stop", h.Stop)
			bots.DELETE("", h.Remove)
			bots.GET("/connection", h.Connection)
		}

		v1.POST("/pools/reconcile", h.Reconcile)
		v1.GET("/stats", h.Stats)
		v1.GET("/users/:userId/pools", h.UserPools)
		v1.GET("/health/status", h.HealthStatus)
	}

	return r
}
