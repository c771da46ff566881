package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Admin      AdminConfig      `mapstructure:"admin"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AppName         string        `mapstructure:"app_name"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	TimeZone        string        `mapstructure:"timezone"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	LogSQL          bool          `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Expire time.Duration `mapstructure:"expire"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AdminConfig is the bootstrap MASTER_ADMIN account created on first start.
type AdminConfig struct {
	Seed     bool   `mapstructure:"seed"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	FullName string `mapstructure:"full_name"`
}

// AllocationConfig carries business policy for the allocation engine.
type AllocationConfig struct {
	SafetyMargin             float64 `mapstructure:"safety_margin"`
	AlternativesLimit        int     `mapstructure:"alternatives_limit"`
	AdjacencyRadius          int     `mapstructure:"adjacency_radius"`
	RequireDistinctConfirmer bool    `mapstructure:"require_distinct_confirmer"`
	StrictSafetyMargin       bool    `mapstructure:"strict_safety_margin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.app_name", "Seed Vault v1.0")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "seedvault")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.slow_threshold", time.Second)
	v.SetDefault("database.log_sql", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "seedvault:")
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "go-seedvault")
	v.SetDefault("jwt.expire", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("allocation.safety_margin", 0.05)
	v.SetDefault("allocation.alternatives_limit", 3)
	v.SetDefault("allocation.adjacency_radius", 1)
	v.SetDefault("allocation.require_distinct_confirmer", true)
	v.SetDefault("allocation.strict_safety_margin", false)

	v.SetDefault("admin.seed", true)
	v.SetDefault("admin.email", "admin@example.com")
	v.SetDefault("admin.password", "admin123")
	v.SetDefault("admin.full_name", "Master Administrator")
}

// Load reads config.yaml from ./configs or the working directory when present,
// then applies environment overrides (SERVER_PORT, DATABASE_HOST, ...).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindLegacyEnv keeps the flat variable names used by existing .env files working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.host", "DB_HOST", "DATABASE_HOST")
	_ = v.BindEnv("database.port", "DB_PORT", "DATABASE_PORT")
	_ = v.BindEnv("database.user", "DB_USER", "DATABASE_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD", "DATABASE_PASSWORD")
	_ = v.BindEnv("database.dbname", "DB_NAME", "DATABASE_DBNAME")
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
}

func (c *Config) Validate() error {
	a := c.Allocation
	if a.SafetyMargin < 0 || a.SafetyMargin >= 1 {
		return fmt.Errorf("allocation.safety_margin must be in [0,1), got %v", a.SafetyMargin)
	}
	if a.AlternativesLimit < 0 {
		return fmt.Errorf("allocation.alternatives_limit must not be negative, got %d", a.AlternativesLimit)
	}
	if a.AdjacencyRadius < 1 {
		return fmt.Errorf("allocation.adjacency_radius must be at least 1, got %d", a.AdjacencyRadius)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// DSN builds the postgres connection string unless an explicit URL is configured.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode, d.TimeZone,
	)
}
