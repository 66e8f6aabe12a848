// Package config loads application configuration via Viper from environment
// variables and an optional config file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups all application configuration.
type Config struct {
	App   AppConfig
	DB    DBConfig
	HTTP  HTTPConfig
	JWT   JWTConfig
	Log   LogConfig
	Stock StockConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig holds PostgreSQL settings. If DatabaseURL is set it is used as the
// full connection string, otherwise the DSN is built from the parts.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
}

// ConnectionString returns the DSN to use.
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN builds a PostgreSQL connection string with URL encoding for special characters.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds token validation settings. Tokens are issued by the
// external auth service; this engine only validates them.
type JWTConfig struct {
	Secret string
	Issuer string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// StockConfig holds lot engine tunables.
type StockConfig struct {
	// ExpiryHorizonDays is the EXPIRING_SOON window (default 30).
	ExpiryHorizonDays int

	// DefaultCostingMethod applies when a product has no stored valuation
	// settings: "WEIGHTED_AVERAGE" or "FIFO".
	DefaultCostingMethod string

	// IdempotencyTTL is how long cached idempotent responses are kept.
	IdempotencyTTL time.Duration
}

// ExpiryHorizon returns the horizon as a duration.
func (c StockConfig) ExpiryHorizon() time.Duration {
	return time.Duration(c.ExpiryHorizonDays) * 24 * time.Hour
}

// Load reads configuration from environment (and optional file at path,
// which may be empty).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Name: v.GetString("app.name"),
		},
		DB: DBConfig{
			DatabaseURL: v.GetString("database.url"),
			Host:        v.GetString("database.host"),
			Port:        v.GetInt("database.port"),
			User:        v.GetString("database.user"),
			Password:    v.GetString("database.password"),
			DBName:      v.GetString("database.name"),
			SSLMode:     v.GetString("database.sslmode"),
			MaxConns:    int32(v.GetInt("database.max_conns")),
			MinConns:    int32(v.GetInt("database.min_conns")),
		},
		HTTP: HTTPConfig{
			Host:            v.GetString("http.host"),
			Port:            v.GetInt("http.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		Stock: StockConfig{
			ExpiryHorizonDays:    v.GetInt("stock.expiry_horizon_days"),
			DefaultCostingMethod: v.GetString("stock.default_costing_method"),
			IdempotencyTTL:       v.GetDuration("stock.idempotency_ttl"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "lotledger")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "lotledger")
	v.SetDefault("database.name", "lotledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("jwt.issuer", "lotledger")

	v.SetDefault("log.level", "info")

	v.SetDefault("stock.expiry_horizon_days", 30)
	v.SetDefault("stock.default_costing_method", "WEIGHTED_AVERAGE")
	v.SetDefault("stock.idempotency_ttl", 10*time.Minute)
}

func (c *Config) validate() error {
	if c.Stock.ExpiryHorizonDays < 0 {
		return fmt.Errorf("stock.expiry_horizon_days must not be negative")
	}
	switch c.Stock.DefaultCostingMethod {
	case "WEIGHTED_AVERAGE", "FIFO":
	default:
		return fmt.Errorf("stock.default_costing_method must be WEIGHTED_AVERAGE or FIFO, got %q", c.Stock.DefaultCostingMethod)
	}
	return nil
}
