// Package poolmanager owns pools, slots, ports, and on-disk pool layout: the
// single source of truth described by the data model. It issues
// supervisor-level commands inside pool containers through the runtime
// driver and persists state after every mutating operation.
package poolmanager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/audit"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/metrics"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/supervisor"
)

// Manager is the PoolManager. Its in-memory pools/botMapping/nextPoolId are
// the only shared mutable state in the core (§5); mu guards them, and io
// performed through the runtime driver is released before I/O and
// reacquired to commit, per the required discipline.
type Manager struct {
	mu    sync.Mutex
	state *poolstate.State
	store *poolstate.Store

	// order preserves pool insertion order for the placement algorithm's
	// "iteration order is insertion order" rule; it is rebuilt from
	// CreatedAt on load since map iteration is not ordered.
	order []string

	userLocksMu sync.Mutex
	userLocks   map[string]*sync.Mutex

	runtime runtime.ContainerRuntime
	cfg     config.PoolConfig
	logger  *slog.Logger
	audit   *audit.Recorder
}

// SetAudit attaches a best-effort audit recorder. Safe to call with a
// disabled/nil recorder; events then become no-ops.
func (m *Manager) SetAudit(r *audit.Recorder) {
	m.audit = r
}

func NewManager(rt runtime.ContainerRuntime, store *poolstate.Store, cfg config.PoolConfig, logger *slog.Logger) *Manager {
	st := store.Load()
	m := &Manager{
		state:     st,
		store:     store,
		runtime:   rt,
		cfg:       cfg,
		logger:    logger,
		userLocks: make(map[string]*sync.Mutex),
	}
	m.rebuildOrder()
	if cfg.BasePort > st.NextPortLow {
		st.NextPortLow = cfg.BasePort
	}
	m.refreshMetrics()
	return m
}

func (m *Manager) rebuildOrder() {
	ids := make([]string, 0, len(m.state.Pools))
	for id := range m.state.Pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.state.Pools[ids[i]], m.state.Pools[ids[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.PoolID < b.PoolID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	m.order = ids
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.userLocksMu.Lock()
	defer m.userLocksMu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}

func (m *Manager) persistLocked() {
	m.state.UpdatedAt = time.Now()
	if err := m.store.Save(m.state); err != nil {
		m.logger.Error("failed to persist pool state", "error", err)
	}
}

func (m *Manager) refreshMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics.PoolCount.Set(float64(len(m.state.Pools)))
	metrics.BotCount.Set(float64(len(m.state.BotMapping)))
}

// Allocate assigns instanceId to a pool slot, creating a new pool for the
// user if none has capacity. Idempotent: if instanceId is already mapped,
// returns the existing slot without mutating state.
func (m *Manager) Allocate(ctx context.Context, instanceID, userID string, cfg BotConfig) (poolstate.Slot, error) {
	if userID == "" {
		return poolstate.Slot{}, ErrMissingUserID
	}

	start := time.Now()
	defer func() { metrics.AllocationLatency.Observe(time.Since(start).Seconds()) }()

	if slot, ok := m.existingSlot(instanceID); ok {
		return slot, nil
	}

	ul := m.userLock(userID)
	ul.Lock()
	defer ul.Unlock()

	// Re-check: another goroutine may have allocated this instance while we
	// waited for the per-user lock.
	if slot, ok := m.existingSlot(instanceID); ok {
		return slot, nil
	}

	m.mu.Lock()
	poolID, ok := m.findPoolWithCapacity(userID)
	if ok {
		slot := m.appendToPoolLocked(poolID, instanceID, userID)
		m.persistLocked()
		m.mu.Unlock()
		m.refreshMetrics()
		m.audit.Record(ctx, "pool", "allocated", instanceID, slot.PoolID, userID, "existing pool")
		return slot, nil
	}

	// No capacity anywhere: reserve a pool number and port range now (under
	// the manager lock, so two different users creating pools concurrently
	// never pick overlapping ports), then release the lock before the
	// blocking container-up call.
	poolNumber := m.state.NextPoolID[userID] + 1
	basePort := m.state.NextPortLow
	m.state.NextPortLow = basePort + m.cfg.MaxBotsPerContainer
	m.mu.Unlock()

	newPoolID := fmt.Sprintf("%s-pool-%d", userID, poolNumber)
	containerName := newPoolID
	root := filepath.Join(m.cfg.Root, userID, newPoolID)

	if err := m.bringPoolUp(ctx, root, containerName); err != nil {
		metrics.PoolCreationErrors.Inc()
		m.logger.Error("pool creation failed", "pool_id", newPoolID, "error", err)
		return poolstate.Slot{}, fmt.Errorf("create pool for user %s: %w", userID, err)
	}

	m.mu.Lock()
	pool := &poolstate.Pool{
		PoolID:        newPoolID,
		ContainerName: containerName,
		UserID:        userID,
		MaxBots:       m.cfg.MaxBotsPerContainer,
		BasePort:      basePort,
		Bots:          make([]string, 0, m.cfg.MaxBotsPerContainer),
		Status:        poolstate.PoolRunning,
		CreatedAt:     time.Now(),
		Root:          root,
	}
	m.state.Pools[newPoolID] = pool
	m.order = append(m.order, newPoolID)
	m.state.NextPoolID[userID] = poolNumber

	slot := m.appendToPoolLocked(newPoolID, instanceID, userID)
	m.persistLocked()
	m.mu.Unlock()
	m.refreshMetrics()
	m.audit.Record(ctx, "pool", "allocated", instanceID, newPoolID, userID, "new pool")
	return slot, nil
}

func (m *Manager) existingSlot(instanceID string) (poolstate.Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.state.BotMapping[instanceID]; ok {
		return *slot, true
	}
	return poolstate.Slot{}, false
}

// findPoolWithCapacity returns the first pool (by insertion order) owned by
// userID that is running and has room, per the placement algorithm.
func (m *Manager) findPoolWithCapacity(userID string) (string, bool) {
	for _, id := range m.order {
		p, ok := m.state.Pools[id]
		if !ok || p.UserID != userID {
			continue
		}
		if p.Status == poolstate.PoolRunning && len(p.Bots) < p.MaxBots {
			return id, true
		}
	}
	return "", false
}

// appendToPoolLocked must be called with mu held. It picks the smallest free
// port in the pool's range, appends instanceID, and inserts the mapping.
func (m *Manager) appendToPoolLocked(poolID, instanceID, userID string) poolstate.Slot {
	pool := m.state.Pools[poolID]
	used := pool.UsedPorts(func(id string) (poolstate.Slot, bool) {
		if s, ok := m.state.BotMapping[id]; ok {
			return *s, true
		}
		return poolstate.Slot{}, false
	})

	lo, hi := pool.PortRange()
	port := lo
	for used[port] && port < hi {
		port++
	}

	slotIndex := len(pool.Bots)
	host := m.resolveHost(pool)

	slot := &poolstate.Slot{
		InstanceID: instanceID,
		PoolID:     poolID,
		UserID:     userID,
		SlotIndex:  slotIndex,
		Port:       port,
		Status:     poolstate.SlotPending,
		Host:       host,
	}

	pool.Bots = append(pool.Bots, instanceID)
	m.state.BotMapping[instanceID] = slot
	return *slot
}

// resolveHost implements the Mapper-adjacent host resolution policy for
// pooled endpoints: a configured override, else localhost on the container
// host, else the pool's container name for docker-internal DNS.
func (m *Manager) resolveHost(pool *poolstate.Pool) string {
	if m.cfg.HostOverride != "" {
		return m.cfg.HostOverride
	}
	switch m.cfg.HostMode {
	case config.HostModeHost:
		return "localhost"
	case config.HostModeContainer:
		return pool.ContainerName
	default: // auto
		if runningInsideContainer() {
			return pool.ContainerName
		}
		return "localhost"
	}
}

func runningInsideContainer() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// bringPoolUp creates the on-disk layout and brings the pool container up.
// It performs no state mutation and is always called with the manager lock
// released, since it blocks on the runtime driver.
func (m *Manager) bringPoolUp(ctx context.Context, root, containerName string) error {
	for _, dir := range []string{"supervisor", "bots", "logs"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", ErrIOError, dir, err)
		}
	}

	if err := writeSupervisorBootstrap(filepath.Join(root, "supervisor", "supervisord.conf")); err != nil {
		return fmt.Errorf("%w: %v", ErrIOError, err)
	}

	manifest := runtime.Manifest{
		Name:        containerName,
		Image:       m.cfg.RuntimeImage,
		NetworkName: m.cfg.NetworkName,
		Binds: map[string]string{
			root: "/pool",
		},
		MemMB:  m.cfg.ContainerMem,
		CPU:    m.cfg.ContainerCPU,
		Labels: map[string]string{"managed_by": "pool-orchestrator"},
	}

	if err := m.runtime.ContainerUp(ctx, root, manifest); err != nil {
		return err
	}
	return nil
}

func writeSupervisorBootstrap(path string) error {
	const tpl = "[supervisord]\nnodaemon=true\n\n[include]\nfiles = /pool/supervisor/bot-*.conf\n"
	return os.WriteFile(path, []byte(tpl), 0644)
}

// Start advances instanceId's slot to running: writes its per-bot program
// config if absent (or rewrites it when cfg names a strategy), then issues
// reread/update/start through the supervisor.
func (m *Manager) Start(ctx context.Context, instanceID string, cfg BotConfig) error {
	pool, slot, err := m.lookupLocked(instanceID)
	if err != nil {
		return err
	}

	confPath := filepath.Join(pool.Root, "bots", slot.InstanceID, "config.json")
	if _, statErr := os.Stat(confPath); os.IsNotExist(statErr) || cfg.Strategy != "" {
		if err := m.writeBotConfig(pool, slot, cfg); err != nil {
			return fmt.Errorf("%w: %v", ErrIOError, err)
		}
	}

	sup := supervisor.NewClient(m.runtime, pool.ContainerName)
	program := supervisor.BotProgramName(instanceID)

	if err := sup.Reread(ctx); err != nil {
		metrics.SupervisorErrors.Inc()
		return fmt.Errorf("%w: %v", ErrSupervisorError, err)
	}
	if err := sup.Update(ctx); err != nil {
		metrics.SupervisorErrors.Inc()
		return fmt.Errorf("%w: %v", ErrSupervisorError, err)
	}

	state, err := sup.Status(ctx, program)
	if err == nil && state == supervisor.StateRunning {
		// Idempotent start: already running, no state change beyond ensuring
		// the slot reflects it.
		m.setSlotStatus(instanceID, poolstate.SlotRunning)
		return nil
	}

	if err := sup.Start(ctx, program); err != nil {
		metrics.SupervisorErrors.Inc()
		return fmt.Errorf("%w: %v", ErrSupervisorError, err)
	}

	m.setSlotStatus(instanceID, poolstate.SlotRunning)
	m.audit.Record(ctx, "pool", "started", instanceID, pool.PoolID, pool.UserID, cfg.Strategy)
	return nil
}

// Stop is best-effort: it logs but does not raise if the instance is
// unknown or the supervisor call fails, to guarantee progress of cleanup.
func (m *Manager) Stop(ctx context.Context, instanceID string) {
	pool, _, err := m.lookupLocked(instanceID)
	if err != nil {
		m.logger.Warn("stop: instance not found, ignoring", "instance_id", instanceID)
		return
	}
	sup := supervisor.NewClient(m.runtime, pool.ContainerName)
	if err := sup.Stop(ctx, supervisor.BotProgramName(instanceID)); err != nil {
		m.logger.Warn("stop: supervisor call failed", "instance_id", instanceID, "error", err)
	}
	m.setSlotStatus(instanceID, poolstate.SlotStopped)
	m.audit.Record(ctx, "pool", "stopped", instanceID, pool.PoolID, pool.UserID, "")
}

func (m *Manager) Restart(ctx context.Context, instanceID string) error {
	pool, _, err := m.lookupLocked(instanceID)
	if err != nil {
		return err
	}
	sup := supervisor.NewClient(m.runtime, pool.ContainerName)
	if err := sup.Restart(ctx, supervisor.BotProgramName(instanceID)); err != nil {
		metrics.SupervisorErrors.Inc()
		return fmt.Errorf("%w: %v", ErrSupervisorError, err)
	}
	m.setSlotStatus(instanceID, poolstate.SlotRunning)
	return nil
}

// UpdateStrategy rewrites the bot's config with a new strategy and always
// restarts it (Open Question #4: no hot-reload path).
func (m *Manager) UpdateStrategy(ctx context.Context, instanceID, strategy string) error {
	pool, slot, err := m.lookupLocked(instanceID)
	if err != nil {
		return err
	}

	if err := m.writeBotConfig(pool, slot, BotConfig{Strategy: strategy}); err != nil {
		return fmt.Errorf("%w: %v", ErrIOError, err)
	}

	sup := supervisor.NewClient(m.runtime, pool.ContainerName)
	program := supervisor.BotProgramName(instanceID)
	if err := sup.Reread(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSupervisorError, err)
	}
	if err := sup.Update(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSupervisorError, err)
	}
	if err := sup.Restart(ctx, program); err != nil {
		metrics.SupervisorErrors.Inc()
		return fmt.Errorf("%w: %v", ErrSupervisorError, err)
	}
	m.setSlotStatus(instanceID, poolstate.SlotRunning)
	return nil
}

// Remove deletes instanceId's mapping, on-disk bot directory, and supervisor
// program. Best-effort: errors are logged, never raised.
func (m *Manager) Remove(ctx context.Context, instanceID string) {
	m.mu.Lock()
	slot, ok := m.state.BotMapping[instanceID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("remove: instance not found, ignoring", "instance_id", instanceID)
		return
	}
	pool, poolOK := m.state.Pools[slot.PoolID]
	m.mu.Unlock()

	if poolOK {
		sup := supervisor.NewClient(m.runtime, pool.ContainerName)
		program := supervisor.BotProgramName(instanceID)
		if err := sup.Stop(ctx, program); err != nil {
			m.logger.Warn("remove: stop failed", "instance_id", instanceID, "error", err)
		}
		if err := sup.Remove(ctx, program); err != nil {
			m.logger.Warn("remove: supervisor remove failed", "instance_id", instanceID, "error", err)
		}
		if err := sup.Reread(ctx); err != nil {
			m.logger.Warn("remove: reread failed", "instance_id", instanceID, "error", err)
		}
		_ = sup.Update(ctx)

		if pool.Root != "" {
			if err := os.RemoveAll(filepath.Join(pool.Root, "bots", instanceID)); err != nil {
				m.logger.Warn("remove: failed to delete bot directory", "instance_id", instanceID, "error", err)
			}
			confPath := filepath.Join(pool.Root, "supervisor", supervisor.BotConfFileName(instanceID))
			if err := os.Remove(confPath); err != nil && !os.IsNotExist(err) {
				m.logger.Warn("remove: failed to delete program file", "instance_id", instanceID, "error", err)
			}
		}
	}

	m.mu.Lock()
	delete(m.state.BotMapping, instanceID)
	if poolOK {
		p := m.state.Pools[slot.PoolID]
		p.Bots = removeString(p.Bots, instanceID)
	}
	m.persistLocked()
	m.mu.Unlock()
	m.refreshMetrics()
	m.audit.Record(ctx, "pool", "removed", instanceID, slot.PoolID, slot.UserID, "")
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// CleanupEmptyPools removes pools with zero bots. Manual only, per Open
// Question #3. Per-pool errors are logged, never halting the sweep.
func (m *Manager) CleanupEmptyPools(ctx context.Context) int {
	m.mu.Lock()
	var empty []*poolstate.Pool
	for _, p := range m.state.Pools {
		if len(p.Bots) == 0 {
			empty = append(empty, p)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, p := range empty {
		if err := m.runtime.ContainerDown(ctx, p.Root, p.ContainerName); err != nil {
			m.logger.Error("cleanup: failed to tear down pool container", "pool_id", p.PoolID, "error", err)
			continue
		}
		m.mu.Lock()
		delete(m.state.Pools, p.PoolID)
		m.order = removeString(m.order, p.PoolID)
		m.persistLocked()
		m.mu.Unlock()
		removed++
	}
	m.refreshMetrics()
	return removed
}

// Reconcile aligns in-memory/on-disk state with what is actually running.
func (m *Manager) Reconcile(ctx context.Context) ReconcileReport {
	m.mu.Lock()
	pools := make([]*poolstate.Pool, 0, len(m.state.Pools))
	for _, p := range m.state.Pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	report := ReconcileReport{PoolsChecked: len(pools)}

	for _, pool := range pools {
		state, err := m.runtime.ContainerInspect(ctx, pool.ContainerName)
		if err != nil || !state.Running {
			m.setPoolStatus(pool.PoolID, poolstate.PoolStopped)
			continue
		}

		sup := supervisor.NewClient(m.runtime, pool.ContainerName)
		running, err := sup.StatusAll(ctx)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("pool %s: supervisor status failed: %v", pool.PoolID, err))
			continue
		}

		m.mu.Lock()
		for _, instanceID := range append([]string(nil), pool.Bots...) {
			program := supervisor.BotProgramName(instanceID)
			if running[program] != supervisor.StateRunning {
				p := m.state.Pools[pool.PoolID]
				p.Bots = removeString(p.Bots, instanceID)
				delete(m.state.BotMapping, instanceID)
				report.RemovedStale = append(report.RemovedStale, StaleSlot{InstanceID: instanceID, PoolID: pool.PoolID, Reason: "not_running"})
			}
		}
		for program := range running {
			if findInstanceForProgram(pool.Bots, program) {
				continue
			}
			report.OrphansFound = append(report.OrphansFound, OrphanBot{PoolID: pool.PoolID, Program: program})
		}
		m.persistLocked()
		m.mu.Unlock()
	}
	m.refreshMetrics()
	return report
}

func findInstanceForProgram(bots []string, program string) bool {
	for _, b := range bots {
		if supervisor.BotProgramName(b) == program {
			return true
		}
	}
	return false
}

// ConnectionOf returns connection info for instanceId, or false if unknown.
func (m *Manager) ConnectionOf(instanceID string) (Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.state.BotMapping[instanceID]
	if !ok {
		return Connection{}, false
	}
	pool := m.state.Pools[slot.PoolID]
	containerName := ""
	if pool != nil {
		containerName = pool.ContainerName
	}
	return Connection{
		Host:          slot.Host,
		Port:          slot.Port,
		URL:           fmt.Sprintf("http://%s:%d", slot.Host, slot.Port),
		PoolID:        slot.PoolID,
		SlotIndex:     slot.SlotIndex,
		ContainerName: containerName,
	}, true
}

// UserPools returns a read-only view of a user's pools.
func (m *Manager) UserPools(userID string) []PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PoolStats
	for _, id := range m.order {
		p := m.state.Pools[id]
		if p.UserID != userID {
			continue
		}
		out = append(out, PoolStats{
			PoolID:   p.PoolID,
			UserID:   p.UserID,
			Status:   string(p.Status),
			MaxBots:  p.MaxBots,
			BotCount: len(p.Bots),
			MemMB:    p.MemMB,
			CPUPct:   p.CPUPct,
		})
	}
	return out
}

// Snapshot returns a read-only view of every pool, regardless of owning
// user, for HealthMonitor and MigrationEngine to iterate without holding the
// manager lock across their own network/IPC calls.
func (m *Manager) Snapshot() []PoolSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PoolSnapshot, 0, len(m.state.Pools))
	for _, id := range m.order {
		p, ok := m.state.Pools[id]
		if !ok {
			continue
		}
		out = append(out, PoolSnapshot{
			PoolID:        p.PoolID,
			UserID:        p.UserID,
			ContainerName: p.ContainerName,
			Status:        string(p.Status),
			Root:          p.Root,
			Bots:          append([]string(nil), p.Bots...),
		})
	}
	return out
}

// RestartAttempt records one recovery attempt in the persisted restart
// ledger and reports whether it was within budget (and so should proceed)
// or skipped for being inside the cooldown window at the attempt cap.
func (m *Manager) RestartAttempt(scope poolstate.RestartScope, id string, maxAttempts int, cooldown time.Duration) (allowed bool, cooldownRemaining time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := poolstate.RestartKey(scope, id)
	entry := m.state.RestartLog[key]
	now := time.Now()

	if entry.Count >= maxAttempts {
		elapsed := now.Sub(entry.LastAttemptAt)
		if elapsed < cooldown {
			return false, cooldown - elapsed
		}
		entry = poolstate.RestartEntry{}
	}

	entry.Count++
	entry.LastAttemptAt = now
	m.state.RestartLog[key] = entry
	m.persistLocked()
	return true, 0
}

// RestartContainer restarts a pool's container directly through the runtime
// driver, bypassing the supervisor (used by HealthMonitor when the container
// itself, not just a bot program, is unhealthy).
func (m *Manager) RestartContainer(ctx context.Context, containerName string) error {
	return m.runtime.RestartContainer(ctx, containerName)
}

// RestartBotProgram restarts one bot's supervisor program directly, without
// touching slot status bookkeeping (used by HealthMonitor recovery, which
// treats the program, not the slot, as the subject under repair).
func (m *Manager) RestartBotProgram(ctx context.Context, containerName, instanceID string) error {
	sup := supervisor.NewClient(m.runtime, containerName)
	return sup.Restart(ctx, supervisor.BotProgramName(instanceID))
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{PoolsByUser: make(map[string]int)}
	for _, p := range m.state.Pools {
		s.TotalPools++
		s.TotalBots += len(p.Bots)
		s.PoolsByUser[p.UserID]++
		switch p.Status {
		case poolstate.PoolRunning:
			s.RunningPools++
		case poolstate.PoolStopped:
			s.StoppedPools++
		case poolstate.PoolFailed:
			s.FailedPools++
		}
	}
	return s
}

func (m *Manager) lookupLocked(instanceID string) (*poolstate.Pool, *poolstate.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.state.BotMapping[instanceID]
	if !ok {
		return nil, nil, ErrUnknownInstance
	}
	pool, ok := m.state.Pools[slot.PoolID]
	if !ok {
		return nil, nil, ErrPoolMissing
	}
	return pool, slot, nil
}

func (m *Manager) setSlotStatus(instanceID string, status poolstate.SlotStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.state.BotMapping[instanceID]; ok {
		slot.Status = status
		m.persistLocked()
	}
}

func (m *Manager) setPoolStatus(poolID string, status poolstate.PoolStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pool, ok := m.state.Pools[poolID]; ok && pool.Status != status {
		pool.Status = status
		m.persistLocked()
	}
}

// writeBotConfig writes the per-bot program config and supervisor program
// file. If the requested strategy file is absent, a safe default strategy
// is substituted and a warning logged, per the per-bot program contract.
func (m *Manager) writeBotConfig(pool *poolstate.Pool, slot *poolstate.Slot, cfg BotConfig) error {
	strategy := cfg.Strategy
	strategyPath := filepath.Join(pool.Root, "bots", slot.InstanceID, "strategies", strategy+".json")
	if strategy == "" {
		strategy = defaultStrategy
	} else if _, err := os.Stat(strategyPath); os.IsNotExist(err) {
		m.logger.Warn("strategy file missing, substituting default", "instance_id", slot.InstanceID, "strategy", strategy)
		strategy = defaultStrategy
	}

	botDir := filepath.Join(pool.Root, "bots", slot.InstanceID)
	if err := os.MkdirAll(botDir, 0755); err != nil {
		return err
	}

	botConfig := fmt.Sprintf(
		"{\n  \"instanceId\": %q,\n  \"strategy\": %q,\n  \"initialBalance\": %v,\n  \"dbPath\": %q,\n  \"logPath\": %q,\n  \"port\": %d\n}\n",
		slot.InstanceID, strategy, cfg.InitialBalance,
		filepath.Join(botDir, "bot.sqlite"),
		filepath.Join(pool.Root, "logs", slot.InstanceID+".log"),
		slot.Port,
	)
	if err := os.WriteFile(filepath.Join(botDir, "config.json"), []byte(botConfig), 0644); err != nil {
		return err
	}

	program := supervisor.BotProgramName(slot.InstanceID)
	programConf := fmt.Sprintf(
		"[program:%s]\ncommand=/usr/local/bin/bot-runner --config=%s\nautostart=false\nautorestart=true\nstdout_logfile=%s\nstderr_logfile=%s\n",
		program,
		filepath.Join(botDir, "config.json"),
		filepath.Join(pool.Root, "logs", slot.InstanceID+".out.log"),
		filepath.Join(pool.Root, "logs", slot.InstanceID+".err.log"),
	)
	confPath := filepath.Join(pool.Root, "supervisor", supervisor.BotConfFileName(slot.InstanceID))
	return os.WriteFile(confPath, []byte(programConf), 0644)
}

const defaultStrategy = "default-safe"
