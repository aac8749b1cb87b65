// Package mapper is the only surface callers use: it resolves
// instanceId -> Connection uniformly across pooled and dedicated placement
// and forwards lifecycle operations to whichever path owns the bot.
package mapper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

// Connection is the polymorphism-erased result Mapper hands to callers.
type Connection struct {
	Placement Placement
	Host      string
	Port      int
	URL       string
	Username  string
	Password  string
}

type Mapper struct {
	pool     *poolmanager.Manager
	runtime  runtime.ContainerRuntime
	redis    redis.Cmdable
	poolCfg  config.PoolConfig
	mapCfg   config.MapperConfig
	logger   *slog.Logger
	enqueuer *poolmanager.Enqueuer
}

func NewMapper(pool *poolmanager.Manager, rt runtime.ContainerRuntime, redisClient redis.Cmdable, poolCfg config.PoolConfig, mapCfg config.MapperConfig, logger *slog.Logger) *Mapper {
	return &Mapper{pool: pool, runtime: rt, redis: redisClient, poolCfg: poolCfg, mapCfg: mapCfg, logger: logger}
}

// SetEnqueuer attaches an asynq-backed enqueuer. Once set, Start/Restart/
// UpdateStrategy on a pooled bot hand the (potentially slow) supervisor I/O
// off to the asynq worker instead of performing it inline, an
// enqueue-then-acknowledge split. With no enqueuer attached (e.g. in
// tests), these calls fall back to the direct, synchronous PoolManager
// call.
func (m *Mapper) SetEnqueuer(e *poolmanager.Enqueuer) {
	m.enqueuer = e
}

// ResolveConnection returns instanceId's connection info, uniformly across
// placement. Cached with a TTL; a cache hit skips both PoolManager and disk.
func (m *Mapper) ResolveConnection(ctx context.Context, userID, instanceID string) (Connection, error) {
	if conn, ok := m.cacheGet(ctx, instanceID); ok {
		return conn, nil
	}

	if poolConn, ok := m.pool.ConnectionOf(instanceID); ok {
		conn := Connection{
			Placement: NewPooled(poolConn.PoolID, poolConn.SlotIndex),
			Host:      poolConn.Host,
			Port:      poolConn.Port,
			URL:       poolConn.URL,
		}
		if dir, _, found := discoverBotDir(m.poolCfg.Root, userID, instanceID, poolConn.PoolID); found {
			if cfg, err := readBotConfig(dir); err == nil {
				conn.Username, conn.Password = cfg.Username, cfg.Password
			}
		}
		m.cacheSet(ctx, instanceID, conn, m.mapCfg.ConnectionCacheTTL)
		return conn, nil
	}

	// Not known to PoolManager: dedicated path.
	dir, dedicated, found := discoverBotDir(m.poolCfg.Root, userID, instanceID, "")
	if !found || !dedicated {
		return Connection{}, ErrBotNotFound
	}

	cfg, err := readBotConfig(dir)
	if err != nil {
		return Connection{}, fmt.Errorf("%w: read config: %v", ErrBotNotFound, err)
	}

	containerName := dedicatedContainerName(instanceID)
	conn := Connection{
		Placement: NewDedicated(containerName),
		Host:      m.resolveDedicatedHost(containerName),
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	conn.URL = fmt.Sprintf("http://%s:%d", conn.Host, conn.Port)

	// Dedicated connection info uses a short TTL regardless of the
	// configured pooled TTL: a dedicated container's host/port rarely
	// changes, but caching it for the full pooled TTL would mask a manual
	// reassignment for too long.
	ttl := m.mapCfg.ConnectionCacheTTL
	if ttl > time.Minute {
		ttl = time.Minute
	}
	m.cacheSet(ctx, instanceID, conn, ttl)
	return conn, nil
}

func dedicatedContainerName(instanceID string) string {
	return "bot-dedicated-" + instanceID
}

func (m *Mapper) resolveDedicatedHost(containerName string) string {
	if m.poolCfg.HostOverride != "" {
		return m.poolCfg.HostOverride
	}
	switch m.poolCfg.HostMode {
	case config.HostModeHost:
		return "localhost"
	case config.HostModeContainer:
		return containerName
	default:
		if _, err := os.Stat("/.dockerenv"); err == nil {
			return containerName
		}
		return "localhost"
	}
}

// Start forwards to PoolManager if the bot is pooled, else drives the
// dedicated container directly through the runtime. A pooled start is
// enqueued rather than performed inline when an Enqueuer is attached.
func (m *Mapper) Start(ctx context.Context, instanceID string, cfg poolmanager.BotConfig) error {
	if _, ok := m.pool.ConnectionOf(instanceID); ok {
		if m.enqueuer != nil {
			return m.enqueuer.EnqueueStart(ctx, instanceID, cfg)
		}
		return m.pool.Start(ctx, instanceID, cfg)
	}
	return m.runtime.RestartContainer(ctx, dedicatedContainerName(instanceID))
}

// Restart forwards to PoolManager's supervisor-level restart if the bot is
// pooled, else restarts the dedicated container as a whole.
func (m *Mapper) Restart(ctx context.Context, instanceID string) error {
	if _, ok := m.pool.ConnectionOf(instanceID); ok {
		if m.enqueuer != nil {
			return m.enqueuer.EnqueueRestart(ctx, instanceID)
		}
		return m.pool.Restart(ctx, instanceID)
	}
	return m.runtime.RestartContainer(ctx, dedicatedContainerName(instanceID))
}

// UpdateStrategy rewrites and restarts a pooled bot with a new strategy.
// Dedicated bots have no hot-reload path at all: their config is read once
// at container start, so the caller must stop/start to pick up a change.
func (m *Mapper) UpdateStrategy(ctx context.Context, instanceID, strategy string) error {
	if _, ok := m.pool.ConnectionOf(instanceID); ok {
		if m.enqueuer != nil {
			return m.enqueuer.EnqueueReconfigure(ctx, instanceID, strategy)
		}
		return m.pool.UpdateStrategy(ctx, instanceID, strategy)
	}
	return fmt.Errorf("%w: dedicated bots do not support hot strategy update", ErrUnsupportedForDedicated)
}

// Stop forwards to PoolManager if the bot is pooled, else stops the
// dedicated container directly.
func (m *Mapper) Stop(ctx context.Context, instanceID string) {
	if _, ok := m.pool.ConnectionOf(instanceID); ok {
		m.pool.Stop(ctx, instanceID)
		m.cacheInvalidate(ctx, instanceID)
		return
	}
	if err := m.runtime.ContainerStop(ctx, dedicatedContainerName(instanceID)); err != nil {
		m.logger.Warn("mapper: dedicated stop failed", "instance_id", instanceID, "error", err)
	}
	m.cacheInvalidate(ctx, instanceID)
}

// Remove forwards to PoolManager if the bot is pooled, else tears the
// dedicated container down.
func (m *Mapper) Remove(ctx context.Context, instanceID string) {
	if _, ok := m.pool.ConnectionOf(instanceID); ok {
		m.pool.Remove(ctx, instanceID)
		m.cacheInvalidate(ctx, instanceID)
		return
	}
	name := dedicatedContainerName(instanceID)
	if err := m.runtime.ContainerDown(ctx, "", name); err != nil {
		m.logger.Warn("mapper: dedicated remove failed", "instance_id", instanceID, "error", err)
	}
	m.cacheInvalidate(ctx, instanceID)
}

// Assign allocates a pooled slot for instanceId when the pooled path is
// enabled. Dedicated assignment is provisioned by the out-of-scope gateway;
// the Mapper only ever creates pooled placements.
func (m *Mapper) Assign(ctx context.Context, instanceID, userID string, cfg poolmanager.BotConfig) (Connection, error) {
	if !m.poolCfg.ModeEnabled {
		return Connection{}, fmt.Errorf("assign: pooled mode disabled")
	}
	slot, err := m.pool.Allocate(ctx, instanceID, userID, cfg)
	if err != nil {
		return Connection{}, err
	}
	m.cacheInvalidate(ctx, instanceID)
	return Connection{
		Placement: NewPooled(slot.PoolID, slot.SlotIndex),
		Host:      slot.Host,
		Port:      slot.Port,
		URL:       fmt.Sprintf("http://%s:%d", slot.Host, slot.Port),
	}, nil
}
