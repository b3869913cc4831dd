package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides selected keys from JOBAGG_* variables.
func ApplyEnv(cfg *Config) {
	cfg.App.Port = getEnvInt("JOBAGG_PORT", cfg.App.Port)
	cfg.App.DataDir = getEnvString("JOBAGG_DATA_DIR", cfg.App.DataDir)
	cfg.Log.Level = getEnvString("JOBAGG_LOG_LEVEL", cfg.Log.Level)

	cfg.Search.GlobalDeadline = getEnvDuration("JOBAGG_GLOBAL_DEADLINE", cfg.Search.GlobalDeadline)
	cfg.Search.MaxConcurrentPerKey = getEnvInt("JOBAGG_MAX_CONCURRENT", cfg.Search.MaxConcurrentPerKey)

	cfg.Cache.Backend = getEnvString("JOBAGG_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = getEnvDuration("JOBAGG_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.Redis.Addr = getEnvString("JOBAGG_REDIS_ADDR", cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = getEnvString("JOBAGG_REDIS_PASSWORD", cfg.Cache.Redis.Password)

	cfg.Telemetry.NATS.URL = getEnvString("JOBAGG_NATS_URL", cfg.Telemetry.NATS.URL)
	cfg.Telemetry.ClickHouse.Addr = getEnvString("JOBAGG_CLICKHOUSE_ADDR", cfg.Telemetry.ClickHouse.Addr)
	cfg.Telemetry.OTLPEndpoint = getEnvString("JOBAGG_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)

	if id := getEnvString("JOBAGG_ADZUNA_APP_ID", ""); id != "" {
		for i := range cfg.Sources {
			if cfg.Sources[i].ID == "adzuna" {
				cfg.Sources[i].AppID = id
			}
		}
	}
}

func getEnvString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
