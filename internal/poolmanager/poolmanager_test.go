package poolmanager

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

func newTestManager(t *testing.T) (*Manager, *runtime.FakeDriver) {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := poolstate.NewStore(filepath.Join(root, ".container-pool-state.json"), logger)
	driver := runtime.NewFakeDriver()
	cfg := config.PoolConfig{
		MaxBotsPerContainer: 3,
		BasePort:            9000,
		HostMode:            config.HostModeHost,
		ModeEnabled:         true,
		Root:                root,
		RuntimeImage:        "test-image:latest",
		NetworkName:         "test-net",
		ContainerMem:        256,
		ContainerCPU:        0.5,
	}
	return NewManager(driver, store, cfg, logger), driver
}

func TestFreshAllocationScenario(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	b1, err := m.Allocate(ctx, "b1", "U", BotConfig{})
	if err != nil {
		t.Fatalf("allocate b1: %v", err)
	}
	if b1.PoolID != "U-pool-1" || b1.Port != 9000 || b1.SlotIndex != 0 {
		t.Fatalf("unexpected b1 slot: %+v", b1)
	}

	b2, _ := m.Allocate(ctx, "b2", "U", BotConfig{})
	if b2.PoolID != "U-pool-1" || b2.Port != 9001 {
		t.Fatalf("unexpected b2 slot: %+v", b2)
	}

	b3, _ := m.Allocate(ctx, "b3", "U", BotConfig{})
	if b3.PoolID != "U-pool-1" || b3.Port != 9002 {
		t.Fatalf("unexpected b3 slot: %+v", b3)
	}

	b4, err := m.Allocate(ctx, "b4", "U", BotConfig{})
	if err != nil {
		t.Fatalf("allocate b4: %v", err)
	}
	if b4.PoolID != "U-pool-2" || b4.SlotIndex != 0 {
		t.Fatalf("expected a new pool for b4, got %+v", b4)
	}
}

func TestAllocateIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Allocate(ctx, "b1", "U", BotConfig{})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	second, err := m.Allocate(ctx, "b1", "U", BotConfig{})
	if err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if first != second {
		t.Fatalf("allocate not idempotent: %+v != %+v", first, second)
	}
}

func TestAllocateMissingUserID(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Allocate(context.Background(), "b1", "", BotConfig{})
	if err != ErrMissingUserID {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}

func TestPortsUniqueWithinPool(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ports := map[int]bool{}
	for i := 0; i < 3; i++ {
		slot, err := m.Allocate(ctx, string(rune('a'+i)), "U", BotConfig{})
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if ports[slot.Port] {
			t.Fatalf("duplicate port %d", slot.Port)
		}
		ports[slot.Port] = true
		lo, hi := 9000, 9003
		if slot.Port < lo || slot.Port >= hi {
			t.Fatalf("port %d outside pool range [%d,%d)", slot.Port, lo, hi)
		}
	}
}

func TestStopStartPreservesConnection(t *testing.T) {
	m, driver := newTestManager(t)
	ctx := context.Background()

	slot, _ := m.Allocate(ctx, "b1", "U", BotConfig{Strategy: "momentum"})
	if err := m.Start(ctx, "b1", BotConfig{Strategy: "momentum"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	before, ok := m.ConnectionOf("b1")
	if !ok {
		t.Fatal("expected connection")
	}

	m.Stop(ctx, "b1")
	if err := m.Start(ctx, "b1", BotConfig{Strategy: "momentum"}); err != nil {
		t.Fatalf("restart via start: %v", err)
	}

	after, _ := m.ConnectionOf("b1")
	if before != after {
		t.Fatalf("connection changed across stop/start: %+v != %+v", before, after)
	}

	pool := m.state.Pools[slot.PoolID]
	sup := driver
	states, _ := supervisorStatus(ctx, sup, pool.ContainerName)
	if states["bot-b1"] != "RUNNING" {
		t.Fatalf("expected bot-b1 RUNNING, got %v", states)
	}
}

func TestConnectionOfTotalOnMapping(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Allocate(ctx, "b1", "U", BotConfig{})

	if _, ok := m.ConnectionOf("b1"); !ok {
		t.Fatal("expected connection for mapped instance")
	}
	if _, ok := m.ConnectionOf("unknown"); ok {
		t.Fatal("expected no connection for unmapped instance")
	}
}

func TestRemoveThenReallocatePreservesUser(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, _ := m.Allocate(ctx, "b1", "U", BotConfig{})
	m.Remove(ctx, "b1")

	second, err := m.Allocate(ctx, "b1", "U", BotConfig{})
	if err != nil {
		t.Fatalf("re-allocate after remove: %v", err)
	}
	if second.UserID != first.UserID {
		t.Fatalf("userId changed across remove/re-allocate")
	}
}

func TestReconcileRemovesStaleSlot(t *testing.T) {
	m, driver := newTestManager(t)
	ctx := context.Background()

	_, _ = m.Allocate(ctx, "b1", "U", BotConfig{})
	slot2, _ := m.Allocate(ctx, "b2", "U", BotConfig{})
	_, _ = m.Allocate(ctx, "b3", "U", BotConfig{})

	_ = m.Start(ctx, "b1", BotConfig{})
	_ = m.Start(ctx, "b2", BotConfig{})
	// b3 never started: supervisor has no record of it.

	report := m.Reconcile(ctx)
	foundStale := false
	for _, s := range report.RemovedStale {
		if s.InstanceID == "b3" && s.Reason == "not_running" {
			foundStale = true
		}
	}
	if !foundStale {
		t.Fatalf("expected b3 reported stale, got %+v", report.RemovedStale)
	}
	if _, ok := m.ConnectionOf("b3"); ok {
		t.Fatal("expected b3 removed from mapping after reconcile")
	}

	_ = driver
	_ = slot2
}

func TestReconcileDetectsOrphan(t *testing.T) {
	m, driver := newTestManager(t)
	ctx := context.Background()

	slot, _ := m.Allocate(ctx, "b1", "U", BotConfig{})
	_ = m.Start(ctx, "b1", BotConfig{})

	pool := m.state.Pools[slot.PoolID]
	driver.SetProgramState(pool.ContainerName, "bot-b9", "RUNNING")

	report := m.Reconcile(ctx)
	foundOrphan := false
	for _, o := range report.OrphansFound {
		if o.Program == "bot-b9" {
			foundOrphan = true
		}
	}
	if !foundOrphan {
		t.Fatalf("expected orphan bot-b9 reported, got %+v", report.OrphansFound)
	}
	if _, ok := m.ConnectionOf("b9"); ok {
		t.Fatal("reconcile must never rescue an orphan into the mapping")
	}
}

// supervisorStatus is a small test helper that avoids importing the
// supervisor package's Client type directly in assertions above.
func supervisorStatus(ctx context.Context, d *runtime.FakeDriver, containerName string) (map[string]string, error) {
	res, err := d.ExecInContainer(ctx, containerName, []string{"supervisorctl", "status"})
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			out[fields[0]] = fields[1]
		}
	}
	return out, nil
}
