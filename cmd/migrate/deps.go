package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/docker/docker/client"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/audit"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/migration"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

// buildEngine wires a standalone MigrationEngine against the same
// poolstate file and Docker daemon the orchestrator daemon uses, without
// starting any HTTP or asynq surface — this tool runs one pass and exits.
func buildEngine(ctx context.Context) (*migration.Engine, func(), error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, fmt.Errorf("docker client: %w", err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, nil, fmt.Errorf("docker ping: %w", err)
	}

	rt := runtime.NewDockerDriver(dockerClient, logger)
	store := poolstate.NewStore(filepath.Join(cfg.Pool.Root, "state.json"), logger)
	pool := poolmanager.NewManager(rt, store, cfg.Pool, logger)

	var rec *audit.Recorder
	if cfg.Postgres.Enabled {
		// This tool never opens a Postgres connection: the pass proceeds
		// with a nil recorder, so its events are not written to the
		// supplementary audit trail even when auditing is enabled.
		logger.Warn("audit recorder requires a live Postgres connection managed by the daemon; migrate runs without one")
	}
	pool.SetAudit(rec)

	eng := migration.NewEngine(cfg.Pool.Root, pool, rt, cfg.Health, logger)
	eng.SetAudit(rec)

	cleanup := func() { dockerClient.Close() }
	return eng, cleanup, nil
}
