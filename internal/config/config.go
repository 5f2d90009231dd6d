// Package config defines the top-level configuration for the tradewinds
// economy service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEWINDS_* environment
// variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Market   MarketConfig   `toml:"market"`
	Trading  TradingConfig  `toml:"trading"`
	Revenue  RevenueConfig  `toml:"revenue"`
	Finance  FinanceConfig  `toml:"finance"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Cycle archival is
// skipped entirely when Enabled is false.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ItemDef is a static market item definition, loaded once at startup.
type ItemDef struct {
	ID                 string  `toml:"id"`
	Name               string  `toml:"name"`
	Category           string  `toml:"category"`
	BasePrice          float64 `toml:"base_price"`
	ProductionModifier float64 `toml:"production_modifier"`
	Supply             float64 `toml:"supply"`
	Demand             float64 `toml:"demand"`
	Volatility         float64 `toml:"volatility"`
}

// MarketConfig holds market-ledger tunables and the static item book.
type MarketConfig struct {
	UpdateInterval   duration  `toml:"update_interval"`
	SupplyGrowthRate float64   `toml:"supply_growth_rate"`
	DemandVolatility float64   `toml:"demand_volatility"`
	DemandShift      float64   `toml:"demand_shift"`
	Seed             uint64    `toml:"seed"` // 0 means non-deterministic
	Items            []ItemDef `toml:"items"`
}

// TradingConfig holds trade-endpoint tunables.
type TradingConfig struct {
	// RateLimit is the per-actor trade request budget per window.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// CostDef is a static per-asset-definition operating cost table entry.
type CostDef struct {
	DefinitionID       string  `toml:"definition_id"`
	MaintenancePerHour float64 `toml:"maintenance_per_hour"`
	FuelPerMile        float64 `toml:"fuel_per_mile"`
	CrewPerHour        float64 `toml:"crew_per_hour"`
	InsurancePerDay    float64 `toml:"insurance_per_day"`
	PortFeePerStop     float64 `toml:"port_fee_per_stop"`
}

// RevenueConfig holds revenue-cycle tunables.
type RevenueConfig struct {
	Interval            duration  `toml:"interval"`
	CompetitionPressure float64   `toml:"competition_pressure"`
	OwnerID             string    `toml:"owner_id"`
	Costs               []CostDef `toml:"costs"`
}

// FinanceConfig holds the opening financial position.
type FinanceConfig struct {
	StartingCash   float64 `toml:"starting_cash"`
	FleetValuation float64 `toml:"fleet_valuation"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration wraps time.Duration for TOML string decoding ("5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values,
// including a small starter item book and cost table so simulate mode runs
// without any external setup.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradewinds",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradewinds-archive",
			ForcePathStyle: true,
		},
		Market: MarketConfig{
			UpdateInterval:   duration{time.Minute},
			SupplyGrowthRate: 0.02,
			DemandVolatility: 0.1,
			DemandShift:      0.5,
			Items: []ItemDef{
				{ID: "grain", Name: "Grain", Category: "foodstuff", BasePrice: 20, ProductionModifier: 1.0, Supply: 5000, Demand: 4500, Volatility: 0.1},
				{ID: "rum", Name: "Rum", Category: "foodstuff", BasePrice: 60, ProductionModifier: 1.2, Supply: 1500, Demand: 1800, Volatility: 0.25},
				{ID: "iron", Name: "Iron Ore", Category: "raw_material", BasePrice: 45, ProductionModifier: 1.0, Supply: 3000, Demand: 2800, Volatility: 0.15},
				{ID: "cloth", Name: "Woven Cloth", Category: "manufactured", BasePrice: 80, ProductionModifier: 1.1, Supply: 1200, Demand: 1300, Volatility: 0.2},
				{ID: "silk", Name: "Silk", Category: "luxury", BasePrice: 200, ProductionModifier: 1.5, Supply: 400, Demand: 550, Volatility: 0.4},
			},
		},
		Trading: TradingConfig{
			RateLimit:       30,
			RateLimitWindow: duration{time.Minute},
		},
		Revenue: RevenueConfig{
			Interval:            duration{15 * time.Minute},
			CompetitionPressure: 0.1,
			Costs: []CostDef{
				{DefinitionID: "sloop", MaintenancePerHour: 2, FuelPerMile: 0.4, CrewPerHour: 3, InsurancePerDay: 10, PortFeePerStop: 20},
				{DefinitionID: "brig", MaintenancePerHour: 5, FuelPerMile: 0.9, CrewPerHour: 8, InsurancePerDay: 25, PortFeePerStop: 45},
				{DefinitionID: "galleon", MaintenancePerHour: 12, FuelPerMile: 2.0, CrewPerHour: 20, InsurancePerDay: 60, PortFeePerStop: 100},
			},
		},
		Finance: FinanceConfig{
			StartingCash:   10000,
			FleetValuation: 25000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"simulate": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validCategories mirrors the domain item categories.
var validCategories = map[string]bool{
	"raw_material": true,
	"foodstuff":    true,
	"manufactured": true,
	"luxury":       true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, simulate, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Simulate mode runs entirely in memory and skips the database.
	needsDB := c.Mode != "simulate"
	if needsDB {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Market
	if c.Market.UpdateInterval.Duration <= 0 {
		errs = append(errs, "market: update_interval must be > 0")
	}
	if c.Market.SupplyGrowthRate < 0 {
		errs = append(errs, "market: supply_growth_rate must be >= 0")
	}
	if c.Market.DemandVolatility < 0 || c.Market.DemandVolatility > 1 {
		errs = append(errs, "market: demand_volatility must be in [0, 1]")
	}
	if c.Market.DemandShift < 0 {
		errs = append(errs, "market: demand_shift must be >= 0")
	}
	if len(c.Market.Items) == 0 {
		errs = append(errs, "market: at least one item definition is required")
	}
	seen := make(map[string]bool, len(c.Market.Items))
	for i, item := range c.Market.Items {
		switch {
		case item.ID == "":
			errs = append(errs, fmt.Sprintf("market: items[%d]: id must not be empty", i))
		case seen[item.ID]:
			errs = append(errs, fmt.Sprintf("market: items[%d]: duplicate id %q", i, item.ID))
		default:
			seen[item.ID] = true
		}
		if !validCategories[item.Category] {
			errs = append(errs, fmt.Sprintf("market: items[%d] (%s): unknown category %q", i, item.ID, item.Category))
		}
		if item.BasePrice <= 0 {
			errs = append(errs, fmt.Sprintf("market: items[%d] (%s): base_price must be > 0", i, item.ID))
		}
		if item.ProductionModifier <= 0 {
			errs = append(errs, fmt.Sprintf("market: items[%d] (%s): production_modifier must be > 0", i, item.ID))
		}
		if item.Supply < 0 || item.Demand < 0 {
			errs = append(errs, fmt.Sprintf("market: items[%d] (%s): supply and demand must be >= 0", i, item.ID))
		}
		if item.Volatility < 0 || item.Volatility > 1 {
			errs = append(errs, fmt.Sprintf("market: items[%d] (%s): volatility must be in [0, 1]", i, item.ID))
		}
	}

	// Trading
	if c.Trading.RateLimit < 1 {
		errs = append(errs, "trading: rate_limit must be >= 1")
	}
	if c.Trading.RateLimitWindow.Duration <= 0 {
		errs = append(errs, "trading: rate_limit_window must be > 0")
	}

	// Revenue
	if c.Revenue.Interval.Duration <= 0 {
		errs = append(errs, "revenue: interval must be > 0")
	}
	if c.Revenue.CompetitionPressure < 0 || c.Revenue.CompetitionPressure >= 1 {
		errs = append(errs, "revenue: competition_pressure must be in [0, 1)")
	}

	// Finance
	if c.Finance.StartingCash < 0 {
		errs = append(errs, "finance: starting_cash must be >= 0")
	}
	if c.Finance.FleetValuation < 0 {
		errs = append(errs, "finance: fleet_valuation must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
