package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/audit"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"

	"github.com/docker/docker/client"
	"github.com/go-pg/pg/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Dependency owns every infrastructure handle the orchestrator needs:
// Docker for container lifecycle, Redis for the mapper's connection cache
// and asynq's broker, and an optional Postgres connection for the
// best-effort audit projection.
type Dependency struct {
	Docker      *client.Client
	Redis       *redis.Client
	PG          *pg.DB
	AsynqClient *asynq.Client
	AsynqRedis  asynq.RedisClientOpt
	Audit       *audit.Recorder
	Logger      *slog.Logger
}

func InitDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependency, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("docker ping: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("redis ping (%s): %w", cfg.Redis.Addr, err)
	}

	asynqRedisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	}
	asynqClient := asynq.NewClient(asynqRedisOpt)

	// Postgres backs only the supplementary audit trail; the orchestrator's
	// authoritative state lives in poolstate's JSON file regardless of
	// whether Postgres is configured at all.
	var pgDB *pg.DB
	if cfg.Postgres.Enabled {
		pgDB = pg.Connect(&pg.Options{
			Addr:     cfg.Postgres.Addr,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		})
		if _, err := pgDB.Exec("SELECT 1"); err != nil {
			asynqClient.Close()
			redisClient.Close()
			dockerClient.Close()
			return nil, fmt.Errorf("postgres ping (%s): %w", cfg.Postgres.Addr, err)
		}
	}

	auditRecorder := audit.NewRecorder(pgDB, cfg.Postgres.Enabled, logger)
	if err := auditRecorder.Bootstrap(); err != nil {
		if pgDB != nil {
			pgDB.Close()
		}
		asynqClient.Close()
		redisClient.Close()
		dockerClient.Close()
		return nil, fmt.Errorf("audit bootstrap: %w", err)
	}

	return &Dependency{
		Docker:      dockerClient,
		Redis:       redisClient,
		PG:          pgDB,
		AsynqClient: asynqClient,
		AsynqRedis:  asynqRedisOpt,
		Audit:       auditRecorder,
		Logger:      logger,
	}, nil
}

func (d *Dependency) Close() {
	if d.AsynqClient != nil {
		d.AsynqClient.Close()
	}
	if d.PG != nil {
		d.PG.Close()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.Docker != nil {
		d.Docker.Close()
	}
}
