package api

import (
	"net/http"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/health"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/mapper"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/gin-gonic/gin"
)

// PoolHandler is the internal control-plane surface the external Gateway
// calls into: allocate/start/stop/remove/connection/reconcile/stats, all
// resolved through the Mapper so pooled and dedicated bots are handled
// uniformly.
type PoolHandler struct {
	mapper *mapper.Mapper
	pool   *poolmanager.Manager
	health *health.Monitor
}

func NewPoolHandler(m *mapper.Mapper, pool *poolmanager.Manager, mon *health.Monitor) *PoolHandler {
	return &PoolHandler{mapper: m, pool: pool, health: mon}
}

func (h *PoolHandler) Allocate(c *gin.Context) {
	instanceID := c.Param("instanceId")
	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	cfg := poolmanager.BotConfig{
		Strategy:       req.Strategy,
		InitialBalance: req.InitialBalance,
		Params:         req.Params,
	}

	conn, err := h.mapper.Assign(c.Request.Context(), instanceID, req.UserID, cfg)
	if err != nil {
		abortWithError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusCreated, connectionResponse(instanceID, conn))
}

func (h *PoolHandler) Start(c *gin.Context) {
	instanceID := c.Param("instanceId")
	var req AllocateRequest
	_ = c.ShouldBindJSON(&req) // body optional: reconfigure-on-start is opt-in

	cfg := poolmanager.BotConfig{
		Strategy:       req.Strategy,
		InitialBalance: req.InitialBalance,
		Params:         req.Params,
	}
	if err := h.mapper.Start(c.Request.Context(), instanceID, cfg); err != nil {
		abortWithError(c, mapServiceError(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) Restart(c *gin.Context) {
	instanceID := c.Param("instanceId")
	if err := h.mapper.Restart(c.Request.Context(), instanceID); err != nil {
		abortWithError(c, mapServiceError(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) Reconfigure(c *gin.Context) {
	instanceID := c.Param("instanceId")
	var req ReconfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrInvalidRequest)
		return
	}
	if err := h.mapper.UpdateStrategy(c.Request.Context(), instanceID, req.Strategy); err != nil {
		abortWithError(c, mapServiceError(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) Stop(c *gin.Context) {
	instanceID := c.Param("instanceId")
	h.mapper.Stop(c.Request.Context(), instanceID)
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) Remove(c *gin.Context) {
	instanceID := c.Param("instanceId")
	h.mapper.Remove(c.Request.Context(), instanceID)
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) Connection(c *gin.Context) {
	instanceID := c.Param("instanceId")
	conn, err := h.mapper.ResolveConnection(c.Request.Context(), c.Query("user_id"), instanceID)
	if err != nil {
		abortWithError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, connectionResponse(instanceID, conn))
}

func (h *PoolHandler) Reconcile(c *gin.Context) {
	report := h.pool.Reconcile(c.Request.Context())
	c.JSON(http.StatusOK, reconcileResponse(report))
}

func (h *PoolHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, statsResponse(h.pool.Stats()))
}

func (h *PoolHandler) UserPools(c *gin.Context) {
	userID := c.Param("userId")
	pools := h.pool.UserPools(userID)
	resp := make([]PoolStatsResponse, 0, len(pools))
	for _, p := range pools {
		resp = append(resp, poolStatsResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PoolHandler) HealthStatus(c *gin.Context) {
	if h.health == nil {
		respondError(c, http.StatusServiceUnavailable, ErrHealthDisabled)
		return
	}
	c.JSON(http.StatusOK, healthStatusResponse(h.health.CheckOnce(c.Request.Context())))
}
