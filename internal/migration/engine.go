// Package migration is the MigrationEngine: a one-shot operator tool that
// moves dedicated bots into pools with backup, verification, and ledgered
// rollback. It runs as a separate, sequential task from PoolManager and
// HealthMonitor, driven by cmd/migrate.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/audit"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/metrics"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

// stabilizationWait is the pause between starting a bot in its new pool
// slot and probing it for liveness.
const stabilizationWait = 3 * time.Second

// Engine is the MigrationEngine.
type Engine struct {
	root    string
	pool    *poolmanager.Manager
	runtime runtime.ContainerRuntime
	ledger  *Ledger
	cfg     config.HealthConfig // reuses BotPingTimeout for the liveness probe
	logger  *slog.Logger
	audit   *audit.Recorder

	// stabilize overrides stabilizationWait in tests.
	stabilize time.Duration

	// probe overrides probeLiveness in tests, since a real pool endpoint has
	// nothing listening on its allocated port in a test fixture.
	probe func(ctx context.Context, url, username, password string, timeout time.Duration) error
}

func NewEngine(root string, pool *poolmanager.Manager, rt runtime.ContainerRuntime, cfg config.HealthConfig, logger *slog.Logger) *Engine {
	return &Engine{
		root:      root,
		pool:      pool,
		runtime:   rt,
		ledger:    NewLedger(root),
		cfg:       cfg,
		logger:    logger,
		stabilize: stabilizationWait,
		probe:     probeLiveness,
	}
}

// SetAudit attaches a best-effort audit recorder for migration outcomes.
func (e *Engine) SetAudit(r *audit.Recorder) {
	e.audit = r
}

// Ledger exposes the migration ledger for operator tooling (`migrate
// status`) to read without duplicating Engine's construction of it.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// PlannedMigration is one bot DryRun would migrate, with its simulated
// placement, computed without changing any container or on-disk state.
type PlannedMigration struct {
	InstanceID string
	UserID     string
	PoolID     string // simulated; "" if no existing pool has room
	NewPool    bool
}

// DryRun discovers legacy bots and simulates their placement without
// changing any container or mutating any state. The runtime is only
// queried, read-only, when discovery inspects each dedicated container.
func (e *Engine) DryRun(ctx context.Context) ([]PlannedMigration, error) {
	bots, err := discover(ctx, e.root, e.runtime, e.logger)
	if err != nil {
		return nil, err
	}

	// userRemaining tracks how many free slots are left per user, across
	// existing pools and simulated new ones, so back-to-back dry-run
	// entries for the same user correctly spill into a new simulated pool.
	userRemaining := map[string]int{}

	var plans []PlannedMigration
	for _, b := range bots {
		migrated, err := e.ledger.AlreadyMigrated(b.InstanceID)
		if err != nil {
			return nil, err
		}
		if migrated {
			continue
		}

		existing := e.pool.UserPools(b.UserID)
		remaining, seen := userRemaining[b.UserID]
		if !seen {
			remaining = 0
			for _, p := range existing {
				remaining += p.MaxBots - p.BotCount
			}
		}

		plan := PlannedMigration{InstanceID: b.InstanceID, UserID: b.UserID}
		if remaining > 0 {
			remaining--
			plan.PoolID = "(existing pool with capacity)"
		} else {
			plan.NewPool = true
			remaining = 2 // a freshly simulated pool has MaxBots-1 remaining after this bot
		}
		userRemaining[b.UserID] = remaining
		plans = append(plans, plan)
	}
	return plans, nil
}

// MigrateAll discovers every not-yet-migrated dedicated bot and migrates
// each in turn, appending one Run to the ledger covering the whole pass.
func (e *Engine) MigrateAll(ctx context.Context) (Run, error) {
	run := Run{StartedAt: time.Now()}

	bots, err := discover(ctx, e.root, e.runtime, e.logger)
	if err != nil {
		run.CompletedAt = time.Now()
		return run, err
	}

	for _, b := range bots {
		migrated, err := e.ledger.AlreadyMigrated(b.InstanceID)
		if err != nil {
			e.logger.Warn("migration: ledger lookup failed, skipping", "instance_id", b.InstanceID, "error", err)
			continue
		}
		if migrated {
			continue
		}

		record := e.migrateOne(ctx, b)
		if record.Status == poolstate.MigrationMigrated {
			run.MigratedBots = append(run.MigratedBots, record)
		} else {
			run.FailedBots = append(run.FailedBots, record)
		}
	}

	run.CompletedAt = time.Now()
	if err := e.ledger.Append(run); err != nil {
		return run, fmt.Errorf("append migration log: %w", err)
	}
	return run, nil
}

func (e *Engine) migrateOne(ctx context.Context, b discoveredBot) poolstate.MigrationRecord {
	start := time.Now()
	defer func() { metrics.MigrationDuration.Observe(time.Since(start).Seconds()) }()

	record := poolstate.MigrationRecord{
		InstanceID: b.InstanceID,
		UserID:     b.UserID,
		Timestamp:  start,
		FromMode:   "dedicated",
		ToMode:     "pooled",
	}

	if err := backupConfig(b.Dir); err != nil {
		return e.fail(record, fmt.Errorf("backup config: %w", err))
	}

	// Best-effort: a dedicated container that is already stopped or absent
	// does not block migration.
	if err := e.runtime.ContainerStop(ctx, b.ContainerName); err != nil {
		e.logger.Warn("migration: dedicated stop failed (continuing)", "instance_id", b.InstanceID, "error", err)
	}

	cfg := poolmanager.BotConfig{Strategy: b.Config.Strategy, InitialBalance: b.Config.InitialBalance}
	slot, err := e.pool.Allocate(ctx, b.InstanceID, b.UserID, cfg)
	if err != nil {
		e.restoreDedicated(ctx, b)
		return e.fail(record, fmt.Errorf("allocate pool slot: %w", err))
	}
	record.ResultingSlot = &slot

	if err := e.pool.Start(ctx, b.InstanceID, cfg); err != nil {
		e.pool.Remove(ctx, b.InstanceID)
		e.restoreDedicated(ctx, b)
		return e.fail(record, fmt.Errorf("start in pool: %w", err))
	}

	select {
	case <-time.After(e.stabilize):
	case <-ctx.Done():
		return e.fail(record, ctx.Err())
	}

	conn, ok := e.pool.ConnectionOf(b.InstanceID)
	if !ok {
		e.pool.Remove(ctx, b.InstanceID)
		e.restoreDedicated(ctx, b)
		return e.fail(record, fmt.Errorf("resolve connection after start"))
	}

	pingTimeout := e.cfg.BotPingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	if err := e.probe(ctx, conn.URL, b.Config.Username, b.Config.Password, pingTimeout); err != nil {
		e.pool.Remove(ctx, b.InstanceID)
		e.restoreDedicated(ctx, b)
		return e.fail(record, fmt.Errorf("post-start liveness probe: %w", err))
	}

	if err := e.runtime.ContainerDown(ctx, "", b.ContainerName); err != nil {
		e.logger.Warn("migration: dedicated container removal failed", "instance_id", b.InstanceID, "error", err)
	}

	record.Status = poolstate.MigrationMigrated
	metrics.MigrationsTotal.WithLabelValues("migrated").Inc()
	e.audit.Record(ctx, "migration", "migrated", b.InstanceID, slot.PoolID, b.UserID, "")
	return record
}

func (e *Engine) fail(record poolstate.MigrationRecord, err error) poolstate.MigrationRecord {
	record.Status = poolstate.MigrationFailed
	record.Error = err.Error()
	metrics.MigrationsTotal.WithLabelValues("failed").Inc()
	e.logger.Error("migration failed", "instance_id", record.InstanceID, "error", err)
	e.audit.Record(context.Background(), "migration", "failed", record.InstanceID, "", record.UserID, record.Error)
	return record
}

// restoreDedicated attempts to bring the original dedicated container back
// up after a failed migration attempt, best-effort.
func (e *Engine) restoreDedicated(ctx context.Context, b discoveredBot) {
	if err := e.runtime.RestartContainer(ctx, b.ContainerName); err != nil {
		e.logger.Error("migration: failed to restore dedicated container after failed migration", "instance_id", b.InstanceID, "error", err)
	}
}

// Rollback reverses a previously migrated bot: stop and remove it from the
// pool, then restart the dedicated container from its preserved config.
func (e *Engine) Rollback(ctx context.Context, instanceID string) (poolstate.MigrationRecord, error) {
	migratedRecord, ok, err := e.ledger.FindMigrated(instanceID)
	if err != nil {
		return poolstate.MigrationRecord{}, err
	}
	if !ok {
		return poolstate.MigrationRecord{}, ErrNotMigrated
	}

	e.pool.Stop(ctx, instanceID)
	e.pool.Remove(ctx, instanceID)

	containerName := "bot-dedicated-" + instanceID
	if err := e.runtime.RestartContainer(ctx, containerName); err != nil {
		e.logger.Error("rollback: failed to restart dedicated container", "instance_id", instanceID, "error", err)
	}

	record := poolstate.MigrationRecord{
		InstanceID: instanceID,
		UserID:     migratedRecord.UserID,
		Timestamp:  time.Now(),
		FromMode:   "pooled",
		ToMode:     "dedicated",
		Status:     poolstate.MigrationRolledBack,
	}

	run := Run{StartedAt: record.Timestamp, CompletedAt: time.Now(), RollbackHistory: []poolstate.MigrationRecord{record}}
	if err := e.ledger.Append(run); err != nil {
		return record, fmt.Errorf("append migration log: %w", err)
	}
	metrics.MigrationsTotal.WithLabelValues("rolledBack").Inc()
	e.audit.Record(ctx, "migration", "rolledBack", instanceID, "", migratedRecord.UserID, "")
	return record, nil
}
