package health

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

func newTestMonitor(t *testing.T, maxAttempts int, cooldown time.Duration) (*Monitor, *poolmanager.Manager, *runtime.FakeDriver) {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := poolstate.NewStore(filepath.Join(root, ".container-pool-state.json"), logger)
	driver := runtime.NewFakeDriver()
	poolCfg := config.PoolConfig{
		MaxBotsPerContainer: 3,
		BasePort:            9000,
		HostMode:            config.HostModeHost,
		ModeEnabled:         true,
		Root:                root,
	}
	pool := poolmanager.NewManager(driver, store, poolCfg, logger)
	healthCfg := config.HealthConfig{
		CheckInterval:      time.Hour, // tests drive CheckOnce manually
		MaxRestartAttempts: maxAttempts,
		RestartCooldown:    cooldown,
	}
	return NewMonitor(pool, driver, healthCfg, logger), pool, driver
}

// TestBoundedRecoveryRespectsCooldown reproduces the ledgered-recovery
// scenario: three FATAL observations within the cooldown window each get a
// recovery attempt, and a fourth within the same window is skipped with a
// positive cooldown remaining.
func TestBoundedRecoveryRespectsCooldown(t *testing.T) {
	mon, pool, driver := newTestMonitor(t, 3, time.Minute)
	ctx := context.Background()

	if _, err := pool.Allocate(ctx, "b1", "U", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := pool.Start(ctx, "b1", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	snaps := pool.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(snaps))
	}
	containerName := snaps[0].ContainerName

	attempted := 0
	skipped := 0
	for i := 0; i < 4; i++ {
		driver.SetProgramState(containerName, "bot-b1", "FATAL")
		events, unsubscribe := mon.Subscribe(8)
		mon.CheckOnce(ctx)
		unsubscribe()
		for e := range events {
			switch e.Kind {
			case EventBotRecoveryAttempted:
				attempted++
			case EventBotRecoverySkipped:
				skipped++
				if e.CooldownRemaining <= 0 {
					t.Fatalf("expected positive cooldownRemaining on skip, got %v", e.CooldownRemaining)
				}
			}
		}
	}

	if attempted != 3 {
		t.Fatalf("expected 3 recovery attempts, got %d", attempted)
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped recovery, got %d", skipped)
	}
}

func TestOverallStatusUnhealthyWhenPoolUnhealthy(t *testing.T) {
	mon, pool, driver := newTestMonitor(t, 3, time.Minute)
	ctx := context.Background()

	if _, err := pool.Allocate(ctx, "b1", "U", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	snaps := pool.Snapshot()
	driver.SetRunning(snaps[0].ContainerName, false)

	summary := mon.CheckOnce(ctx)
	if summary.Reason != "unhealthy" {
		t.Fatalf("expected unhealthy rollup, got %s", summary.Reason)
	}
}

func TestOverallStatusHealthyWhenAllRunning(t *testing.T) {
	mon, pool, _ := newTestMonitor(t, 3, time.Minute)
	ctx := context.Background()

	if _, err := pool.Allocate(ctx, "b1", "U", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := pool.Start(ctx, "b1", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	summary := mon.CheckOnce(ctx)
	if summary.Reason != "healthy" {
		t.Fatalf("expected healthy rollup, got %s", summary.Reason)
	}
}
