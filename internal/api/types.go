package api

import (
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/health"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/mapper"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
)

type AllocateRequest struct {
	UserID         string            `json:"user_id" binding:"required"`
	Strategy       string            `json:"strategy" binding:"required"`
	InitialBalance float64           `json:"initial_balance"`
	Params         map[string]string `json:"params"`
}

type ReconfigureRequest struct {
	Strategy string `json:"strategy" binding:"required"`
}

type ConnectionResponse struct {
	InstanceID    string `json:"instance_id"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	URL           string `json:"url"`
	PoolID        string `json:"pool_id,omitempty"`
	SlotIndex     int    `json:"slot_index,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
}

func connectionResponse(instanceID string, c mapper.Connection) ConnectionResponse {
	resp := ConnectionResponse{
		InstanceID: instanceID,
		Host:       c.Host,
		Port:       c.Port,
		URL:        c.URL,
	}
	if pooled, ok := c.Placement.Pooled(); ok {
		resp.PoolID = pooled.PoolID
		resp.SlotIndex = pooled.SlotIndex
	}
	if dedicated, ok := c.Placement.Dedicated(); ok {
		resp.ContainerName = dedicated.ContainerName
	}
	return resp
}

type PoolStatsResponse struct {
	PoolID   string  `json:"pool_id"`
	UserID   string  `json:"user_id"`
	Status   string  `json:"status"`
	MaxBots  int     `json:"max_bots"`
	BotCount int     `json:"bot_count"`
	MemMB    float64 `json:"mem_mb"`
	CPUPct   float64 `json:"cpu_pct"`
}

func poolStatsResponse(s poolmanager.PoolStats) PoolStatsResponse {
	return PoolStatsResponse{
		PoolID:   s.PoolID,
		UserID:   s.UserID,
		Status:   s.Status,
		MaxBots:  s.MaxBots,
		BotCount: s.BotCount,
		MemMB:    s.MemMB,
		CPUPct:   s.CPUPct,
	}
}

type StatsResponse struct {
	TotalPools   int            `json:"total_pools"`
	TotalBots    int            `json:"total_bots"`
	PoolsByUser  map[string]int `json:"pools_by_user"`
	RunningPools int            `json:"running_pools"`
	StoppedPools int            `json:"stopped_pools"`
	FailedPools  int            `json:"failed_pools"`
}

func statsResponse(s poolmanager.Stats) StatsResponse {
	return StatsResponse{
		TotalPools:   s.TotalPools,
		TotalBots:    s.TotalBots,
		PoolsByUser:  s.PoolsByUser,
		RunningPools: s.RunningPools,
		StoppedPools: s.StoppedPools,
		FailedPools:  s.FailedPools,
	}
}

type ReconcileResponse struct {
	PoolsChecked int                     `json:"pools_checked"`
	RemovedStale []poolmanager.StaleSlot `json:"removed_stale,omitempty"`
	OrphansFound []poolmanager.OrphanBot `json:"orphans_found,omitempty"`
	Errors       []string                `json:"errors,omitempty"`
}

func reconcileResponse(r poolmanager.ReconcileReport) ReconcileResponse {
	return ReconcileResponse{
		PoolsChecked: r.PoolsChecked,
		RemovedStale: r.RemovedStale,
		OrphansFound: r.OrphansFound,
		Errors:       r.Errors,
	}
}

type HealthStatusResponse struct {
	Reason    string `json:"reason"`
	Healthy   int    `json:"healthy"`
	Unhealthy int    `json:"unhealthy"`
	Recovered int    `json:"recovered"`
	Skipped   int    `json:"skipped"`
	At        string `json:"at"`
}

func healthStatusResponse(e health.Event) HealthStatusResponse {
	return HealthStatusResponse{
		Reason:    e.Reason,
		Healthy:   e.Healthy,
		Unhealthy: e.Unhealthy,
		Recovered: e.Recovered,
		Skipped:   e.Skipped,
		At:        formatTime(e.At),
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
