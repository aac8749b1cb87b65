package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Pool     PoolConfig
	Worker   WorkerConfig
	Metrics  MetricsConfig
	Log      LogConfig
	Health   HealthConfig
	Mapper   MapperConfig
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	Addr     string
	User     string
	Password string
	Database string
	// Enabled toggles the best-effort audit projection. When false, audit
	// writes are no-ops; nothing in the core depends on Postgres being up.
	Enabled bool
}

// PoolConfig governs pool capacity, port space and on-disk layout.
type PoolConfig struct {
	MaxBotsPerContainer int
	BasePort            int
	HostMode            HostMode
	HostOverride        string
	ModeEnabled         bool
	Root                string
	RuntimeImage        string
	NetworkName         string
	ContainerMem        int64
	ContainerCPU        float64
}

type HostMode string

const (
	HostModeHost      HostMode = "host"
	HostModeContainer HostMode = "container"
	HostModeAuto      HostMode = "auto"
)

type WorkerConfig struct {
	Concurrency int
	RedisAddr   string
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Dir   string
	Level string
}

type HealthConfig struct {
	CheckInterval      time.Duration
	BotPingTimeout     time.Duration
	MaxRestartAttempts int
	RestartCooldown    time.Duration
}

type MapperConfig struct {
	ConnectionCacheTTL time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Addr:     getEnv("POSTGRES_ADDR", "localhost:5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "pool_orchestrator"),
			Enabled:  getBoolEnv("POSTGRES_AUDIT_ENABLED", false),
		},
		Pool: PoolConfig{
			MaxBotsPerContainer: getIntEnv("MAX_BOTS_PER_CONTAINER", 3),
			BasePort:            getIntEnv("POOL_BASE_PORT", 9000),
			HostMode:            HostMode(getEnv("POOL_HOST_MODE", string(HostModeAuto))),
			HostOverride:        getEnv("POOL_HOST_OVERRIDE", ""),
			ModeEnabled:         getBoolEnv("POOL_MODE_ENABLED", true),
			Root:                getEnv("POOL_ROOT", defaultRoot()),
			RuntimeImage:        getEnv("POOL_RUNTIME_IMAGE", "pool-orchestrator/bot-runtime:latest"),
			NetworkName:         getEnv("POOL_NETWORK_NAME", "pool-orchestrator-net"),
			ContainerMem:        int64(getIntEnv("POOL_CONTAINER_MEM_MB", 1024)),
			ContainerCPU:        getFloatEnv("POOL_CONTAINER_CPU", 1.0),
		},
		Worker: WorkerConfig{
			Concurrency: getIntEnv("WORKER_CONCURRENCY", 5),
			RedisAddr:   getEnv("WORKER_REDIS_ADDR", getEnv("REDIS_ADDR", "localhost:6379")),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", defaultLogDir()),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Health: HealthConfig{
			CheckInterval:      getDurationEnv("HEALTH_CHECK_INTERVAL", 30*time.Second),
			BotPingTimeout:     getDurationEnv("BOT_PING_TIMEOUT", 5*time.Second),
			MaxRestartAttempts: getIntEnv("MAX_RESTART_ATTEMPTS", 3),
			RestartCooldown:    getDurationEnv("RESTART_COOLDOWN", 60*time.Second),
		},
		Mapper: MapperConfig{
			ConnectionCacheTTL: getDurationEnv("MAPPER_CONNECTION_CACHE_TTL", time.Minute),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		switch val {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/pool-orchestrator/data"
	}
	return filepath.Join(home, ".pool-orchestrator", "data")
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/pool-orchestrator/logs"
	}
	return filepath.Join(home, ".pool-orchestrator", "logs")
}
