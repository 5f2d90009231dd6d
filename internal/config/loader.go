package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEWINDS_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEWINDS_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "TRADEWINDS_DATABASE_DSN")
	setStr(&cfg.Database.Host, "TRADEWINDS_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRADEWINDS_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRADEWINDS_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRADEWINDS_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRADEWINDS_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRADEWINDS_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "TRADEWINDS_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "TRADEWINDS_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "TRADEWINDS_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEWINDS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEWINDS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEWINDS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEWINDS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEWINDS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEWINDS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADEWINDS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADEWINDS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEWINDS_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEWINDS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEWINDS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEWINDS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEWINDS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEWINDS_S3_FORCE_PATH_STYLE")

	// ── Market ──
	setDuration(&cfg.Market.UpdateInterval, "TRADEWINDS_MARKET_UPDATE_INTERVAL")
	setFloat64(&cfg.Market.SupplyGrowthRate, "TRADEWINDS_MARKET_SUPPLY_GROWTH_RATE")
	setFloat64(&cfg.Market.DemandVolatility, "TRADEWINDS_MARKET_DEMAND_VOLATILITY")
	setFloat64(&cfg.Market.DemandShift, "TRADEWINDS_MARKET_DEMAND_SHIFT")
	setUint64(&cfg.Market.Seed, "TRADEWINDS_MARKET_SEED")

	// ── Trading ──
	setInt(&cfg.Trading.RateLimit, "TRADEWINDS_TRADING_RATE_LIMIT")
	setDuration(&cfg.Trading.RateLimitWindow, "TRADEWINDS_TRADING_RATE_LIMIT_WINDOW")

	// ── Revenue ──
	setDuration(&cfg.Revenue.Interval, "TRADEWINDS_REVENUE_INTERVAL")
	setFloat64(&cfg.Revenue.CompetitionPressure, "TRADEWINDS_REVENUE_COMPETITION_PRESSURE")
	setStr(&cfg.Revenue.OwnerID, "TRADEWINDS_REVENUE_OWNER_ID")

	// ── Finance ──
	setFloat64(&cfg.Finance.StartingCash, "TRADEWINDS_FINANCE_STARTING_CASH")
	setFloat64(&cfg.Finance.FleetValuation, "TRADEWINDS_FINANCE_FLEET_VALUATION")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEWINDS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEWINDS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEWINDS_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEWINDS_MODE")
	setStr(&cfg.LogLevel, "TRADEWINDS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
