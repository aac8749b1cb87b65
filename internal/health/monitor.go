// Package health is the HealthMonitor: a timer-driven loop that classifies
// pools and bots as healthy/degraded/unhealthy and performs bounded
// automatic recovery through PoolManager's own write operations. It never
// allocates and holds no PoolManager lock across its own runtime/supervisor
// calls.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/audit"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/metrics"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/supervisor"
)

// Monitor is the HealthMonitor. It is single-instance: callers should not
// run two Monitors against the same PoolManager.
type Monitor struct {
	pool    *poolmanager.Manager
	runtime runtime.ContainerRuntime
	cfg     config.HealthConfig
	logger  *slog.Logger
	audit   *audit.Recorder

	mu     sync.Mutex
	latest map[string]Classification // subject key -> last classification
	bus    bus
}

func NewMonitor(pool *poolmanager.Manager, rt runtime.ContainerRuntime, cfg config.HealthConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		pool:    pool,
		runtime: rt,
		cfg:     cfg,
		logger:  logger,
		latest:  make(map[string]Classification),
	}
}

// SetAudit attaches a best-effort audit recorder for recovery events.
func (mon *Monitor) SetAudit(r *audit.Recorder) {
	mon.audit = r
}

// Subscribe registers for Events, with a bounded buffer; a slow subscriber
// loses events rather than stalling the check loop. The returned func
// unsubscribes and closes the channel; callers must not close it themselves.
func (mon *Monitor) Subscribe(buf int) (<-chan Event, func()) {
	ch, id := mon.bus.subscribe(buf)
	return ch, func() { mon.bus.unsubscribe(id) }
}

// Run blocks, running CheckOnce on cfg.CheckInterval until ctx is cancelled.
func (mon *Monitor) Run(ctx context.Context) {
	interval := mon.cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs one reconciliation pass: snapshot, classify, recover,
// publish. It is exported so operators and tests can drive it directly.
func (mon *Monitor) CheckOnce(ctx context.Context) Event {
	start := time.Now()
	defer func() { metrics.HealthCheckDuration.Observe(time.Since(start).Seconds()) }()

	summary := Event{Kind: EventHealthCheckComplete, At: start}
	snapshots := mon.pool.Snapshot()

	totalBots := 0
	unhealthyBots := 0
	anyPoolUnhealthy := false
	anyDegraded := false

	for _, pool := range snapshots {
		if pool.Status == "stopped" {
			continue
		}

		state, inspectErr := mon.runtime.ContainerInspect(ctx, pool.ContainerName)
		sup := supervisor.NewClient(mon.runtime, pool.ContainerName)
		reachable := inspectErr == nil && state.Running && sup.Probe(ctx)

		poolClass, poolRecoverable := classifyPool(state.Running, inspectErr == nil, reachable)
		mon.record("pool:"+pool.PoolID, poolClass)

		switch poolClass {
		case Unhealthy:
			anyPoolUnhealthy = true
			if poolRecoverable {
				mon.recoverPool(ctx, &summary, pool)
			}
		case Degraded:
			anyDegraded = true
		}

		var programs map[string]supervisor.ProgramState
		if reachable {
			programs, _ = sup.StatusAll(ctx)
		}

		for _, instanceID := range pool.Bots {
			totalBots++
			program := supervisor.BotProgramName(instanceID)
			st, known := programs[program]

			var bs botState
			switch {
			case !reachable || !known:
				bs = botAbsent
			case st == supervisor.StateRunning:
				bs = botRunning
			case st == supervisor.StateStopped || st == supervisor.StateFatal || st == supervisor.StateBackoff:
				bs = botStoppedFatalBackoff
			default:
				bs = botUnknown
			}

			botClass, recoverable := classifyBot(bs)
			mon.record("bot:"+instanceID, botClass)

			switch botClass {
			case Unhealthy:
				unhealthyBots++
				if recoverable {
					mon.recoverBot(ctx, &summary, pool, instanceID)
				}
			case Degraded:
				anyDegraded = true
			}
		}
	}

	summary.Healthy = len(snapshots) + totalBots - summary.Recovered - summary.Skipped
	summary.Unhealthy = unhealthyBots
	if anyPoolUnhealthy {
		summary.Reason = "unhealthy"
	} else if unhealthyBots > 0 && totalBots > 0 && float64(unhealthyBots)/float64(totalBots) > 0.2 {
		summary.Reason = "unhealthy"
	} else if anyDegraded {
		summary.Reason = "degraded"
	} else {
		summary.Reason = "healthy"
	}

	metrics.UnhealthySubjects.Set(float64(unhealthyBots))
	mon.bus.publish(summary)
	return summary
}

func (mon *Monitor) record(key string, c Classification) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.latest[key] = c
}

// Classification returns the last-observed classification for a subject key
// ("pool:<poolId>" or "bot:<instanceId>"), if any check has run.
func (mon *Monitor) Classification(key string) (Classification, bool) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	c, ok := mon.latest[key]
	return c, ok
}

func (mon *Monitor) recoverPool(ctx context.Context, summary *Event, pool poolmanager.PoolSnapshot) {
	allowed, remaining := mon.pool.RestartAttempt(poolstate.ScopePool, pool.PoolID, mon.cfg.MaxRestartAttempts, mon.cfg.RestartCooldown)
	if !allowed {
		metrics.RecoveryAttempts.WithLabelValues("pool", "skipped").Inc()
		summary.Skipped++
		mon.bus.publish(Event{Kind: EventPoolRecoverySkipped, At: time.Now(), Subject: pool.PoolID, PoolID: pool.PoolID, CooldownRemaining: remaining})
		return
	}

	err := mon.pool.RestartContainer(ctx, pool.ContainerName)
	outcome := "attempted"
	kind := EventPoolRecoveryAttempted
	if err != nil {
		outcome = "failed"
		kind = EventPoolRecoveryFailed
		mon.logger.Warn("health: pool recovery failed", "pool_id", pool.PoolID, "error", err)
	}
	metrics.RecoveryAttempts.WithLabelValues("pool", outcome).Inc()
	summary.Recovered++
	mon.audit.Record(ctx, "health", "pool_recovery_"+outcome, "", pool.PoolID, pool.UserID, "")
	mon.bus.publish(Event{Kind: kind, At: time.Now(), Subject: pool.PoolID, PoolID: pool.PoolID})
}

func (mon *Monitor) recoverBot(ctx context.Context, summary *Event, pool poolmanager.PoolSnapshot, instanceID string) {
	allowed, remaining := mon.pool.RestartAttempt(poolstate.ScopeBot, instanceID, mon.cfg.MaxRestartAttempts, mon.cfg.RestartCooldown)
	if !allowed {
		metrics.RecoveryAttempts.WithLabelValues("bot", "skipped").Inc()
		summary.Skipped++
		mon.bus.publish(Event{Kind: EventBotRecoverySkipped, At: time.Now(), Subject: instanceID, PoolID: pool.PoolID, CooldownRemaining: remaining})
		return
	}

	// recovery tolerates "not found": the bot may have been removed between
	// observation and recovery; RestartBotProgram's error is logged, not
	// raised, so the next check converges instead.
	err := mon.pool.RestartBotProgram(ctx, pool.ContainerName, instanceID)
	outcome := "attempted"
	kind := EventBotRecoveryAttempted
	if err != nil {
		outcome = "failed"
		kind = EventBotRecoveryFailed
		mon.logger.Warn("health: bot recovery failed", "instance_id", instanceID, "error", err)
	}
	metrics.RecoveryAttempts.WithLabelValues("bot", outcome).Inc()
	summary.Recovered++
	mon.audit.Record(ctx, "health", "bot_recovery_"+outcome, instanceID, pool.PoolID, pool.UserID, "")
	mon.bus.publish(Event{Kind: kind, At: time.Now(), Subject: instanceID, PoolID: pool.PoolID})
}
