package migration

import (
	"context"
	"encoding/json"
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

func newTestEngine(t *testing.T) (*Engine, *poolmanager.Manager, *runtime.FakeDriver, string) {
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
	healthCfg := config.HealthConfig{BotPingTimeout: time.Second}
	eng := NewEngine(root, pool, driver, healthCfg, logger)
	eng.stabilize = time.Millisecond
	return eng, pool, driver, root
}

func writeLegacyBot(t *testing.T, root, userID, instanceID string, port int) {
	t.Helper()
	dir := filepath.Join(root, userID, instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg := legacyBotConfig{InstanceID: instanceID, Strategy: "momentum", Port: port, Username: "u", Password: "p"}
	data, _ := json.Marshal(cfg)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestDryRunDoesNotMutateState(t *testing.T) {
	eng, pool, driver, root := newTestEngine(t)
	writeLegacyBot(t, root, "U", "d1", 7000)
	driver.ContainerUp(context.Background(), root, runtime.Manifest{Name: "bot-dedicated-d1"})

	plans, err := eng.DryRun(context.Background())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(plans) != 1 || plans[0].InstanceID != "d1" {
		t.Fatalf("unexpected plans: %+v", plans)
	}
	if !plans[0].NewPool {
		t.Fatalf("expected a new pool to be planned, got %+v", plans[0])
	}
	if len(pool.UserPools("U")) != 0 {
		t.Fatal("dry run must not create any pool")
	}
}

func TestDryRunSkipsStaleConfigWithNoMatchingContainer(t *testing.T) {
	eng, _, _, root := newTestEngine(t)
	writeLegacyBot(t, root, "U", "d1", 7000)
	// No driver.ContainerUp call: "bot-dedicated-d1" has no running (or
	// even present) container, as if the dedicated bot was already torn
	// down but its config directory was left behind.

	plans, err := eng.DryRun(context.Background())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(plans) != 0 {
		t.Fatalf("expected stale config directory to be skipped, got %+v", plans)
	}
}

func TestMigrateAllSucceedsWithLivenessProbe(t *testing.T) {
	eng, pool, driver, root := newTestEngine(t)
	writeLegacyBot(t, root, "U", "d1", 7000)
	driver.ContainerUp(context.Background(), root, runtime.Manifest{Name: "bot-dedicated-d1"})

	// The pool endpoint has nothing actually listening on its allocated
	// port in this fixture; stub the probe to isolate the success path.
	eng.probe = func(ctx context.Context, url, username, password string, timeout time.Duration) error {
		return nil
	}

	run, err := eng.MigrateAll(context.Background())
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if len(run.MigratedBots) != 1 {
		t.Fatalf("expected 1 migrated bot, got %+v", run)
	}
	if _, ok := pool.ConnectionOf("d1"); !ok {
		t.Fatal("expected d1 to have a pooled connection after migration")
	}

	migrated, err := eng.ledger.AlreadyMigrated("d1")
	if err != nil || !migrated {
		t.Fatalf("expected d1 recorded as migrated, err=%v migrated=%v", err, migrated)
	}
}

func TestMigrateRollsBackOnFailedProbe(t *testing.T) {
	eng, pool, driver, root := newTestEngine(t)
	writeLegacyBot(t, root, "U", "d1", 7000)
	driver.ContainerUp(context.Background(), root, runtime.Manifest{Name: "bot-dedicated-d1"})

	// No liveness server running: probeLiveness will fail to connect,
	// triggering the failure/rollback path inside migrateOne.

	run, err := eng.MigrateAll(context.Background())
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if len(run.FailedBots) != 1 {
		t.Fatalf("expected 1 failed bot, got %+v", run)
	}
	if _, ok := pool.ConnectionOf("d1"); ok {
		t.Fatal("expected d1 not left mapped in pool after failed migration")
	}

	migrated, err := eng.ledger.AlreadyMigrated("d1")
	if err != nil {
		t.Fatalf("ledger lookup: %v", err)
	}
	if migrated {
		t.Fatal("expected d1 not recorded as migrated after rollback")
	}

	state, err := driver.ContainerInspect(context.Background(), "bot-dedicated-d1")
	if err != nil || !state.Running {
		t.Fatalf("expected dedicated container restored to running, got %+v err=%v", state, err)
	}
}

func TestRollbackRestoresDedicatedContainer(t *testing.T) {
	eng, pool, driver, root := newTestEngine(t)
	writeLegacyBot(t, root, "U", "d1", 7000)
	driver.ContainerUp(context.Background(), root, runtime.Manifest{Name: "bot-dedicated-d1"})
	eng.probe = func(ctx context.Context, url, username, password string, timeout time.Duration) error {
		return nil
	}

	if _, err := eng.MigrateAll(context.Background()); err != nil {
		t.Fatalf("migrate all: %v", err)
	}

	record, err := eng.Rollback(context.Background(), "d1")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if record.Status != poolstate.MigrationRolledBack {
		t.Fatalf("unexpected status: %v", record.Status)
	}
	if _, ok := pool.ConnectionOf("d1"); ok {
		t.Fatal("expected d1 removed from pool after rollback")
	}

	state, err := driver.ContainerInspect(context.Background(), "bot-dedicated-d1")
	if err != nil || !state.Running {
		t.Fatalf("expected dedicated container restarted, got %+v err=%v", state, err)
	}
}

func TestRollbackUnknownInstanceFails(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	_, err := eng.Rollback(context.Background(), "ghost")
	if err != ErrNotMigrated {
		t.Fatalf("expected ErrNotMigrated, got %v", err)
	}
}
