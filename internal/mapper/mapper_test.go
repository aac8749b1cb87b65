package mapper

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

func newTestMapper(t *testing.T) (*Mapper, *poolmanager.Manager, string) {
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
		RuntimeImage:        "test-image:latest",
		NetworkName:         "test-net",
		ContainerMem:        256,
		ContainerCPU:        0.5,
	}
	pool := poolmanager.NewManager(driver, store, poolCfg, logger)
	mapCfg := config.MapperConfig{ConnectionCacheTTL: 0}

	// No Redis in tests: nil Cmdable exercises the always-miss path.
	m := NewMapper(pool, driver, nil, poolCfg, mapCfg, logger)
	return m, pool, root
}

func writeDedicatedBotConfig(t *testing.T, root, userID, instanceID string, port int) {
	t.Helper()
	dir := filepath.Join(root, userID, instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, _ := json.Marshal(onDiskBotConfig{Port: port, Username: "u", Password: "p"})
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestResolveConnectionPooled(t *testing.T) {
	m, pool, _ := newTestMapper(t)
	ctx := context.Background()

	if _, err := pool.Allocate(ctx, "b1", "U", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	conn, err := m.ResolveConnection(ctx, "U", "b1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := conn.Placement.Pooled(); !ok {
		t.Fatalf("expected pooled placement, got %+v", conn.Placement)
	}
	if conn.Port == 0 {
		t.Fatalf("expected a resolved port, got %+v", conn)
	}
}

func TestResolveConnectionDedicated(t *testing.T) {
	m, _, root := newTestMapper(t)
	writeDedicatedBotConfig(t, root, "U", "d1", 7000)

	conn, err := m.ResolveConnection(context.Background(), "U", "d1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	ded, ok := conn.Placement.Dedicated()
	if !ok {
		t.Fatalf("expected dedicated placement, got %+v", conn.Placement)
	}
	if ded.ContainerName != "bot-dedicated-d1" {
		t.Fatalf("unexpected container name: %s", ded.ContainerName)
	}
	if conn.Port != 7000 {
		t.Fatalf("expected port 7000, got %d", conn.Port)
	}
	if conn.Host != "localhost" {
		t.Fatalf("expected localhost under host mode, got %s", conn.Host)
	}
}

func TestResolveConnectionUnknownReturnsErrBotNotFound(t *testing.T) {
	m, _, _ := newTestMapper(t)
	_, err := m.ResolveConnection(context.Background(), "U", "ghost")
	if err != ErrBotNotFound {
		t.Fatalf("expected ErrBotNotFound, got %v", err)
	}
}

func TestStopForwardsToPoolManagerForPooledBot(t *testing.T) {
	m, pool, _ := newTestMapper(t)
	ctx := context.Background()

	if _, err := pool.Allocate(ctx, "b1", "U", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := pool.Start(ctx, "b1", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	m.Stop(ctx, "b1")

	if _, ok := pool.ConnectionOf("b1"); !ok {
		t.Fatal("stop must not remove the slot, only stop the program")
	}
}

func TestRemoveForwardsToPoolManagerForPooledBot(t *testing.T) {
	m, pool, _ := newTestMapper(t)
	ctx := context.Background()

	if _, err := pool.Allocate(ctx, "b1", "U", poolmanager.BotConfig{}); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	m.Remove(ctx, "b1")

	if _, ok := pool.ConnectionOf("b1"); ok {
		t.Fatal("expected b1 removed from PoolManager mapping")
	}
}

func TestAssignRejectsWhenPooledModeDisabled(t *testing.T) {
	m, _, _ := newTestMapper(t)
	m.poolCfg.ModeEnabled = false

	_, err := m.Assign(context.Background(), "b1", "U", poolmanager.BotConfig{})
	if err == nil {
		t.Fatal("expected error when pooled mode is disabled")
	}
}
