package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups application settings read through viper from env and an optional file.
type Config struct {
	App    AppConfig
	DB     DBConfig
	JWT    JWTConfig
	HTTP   HTTPConfig
	Ledger LedgerConfig
	Mirror MirrorConfig
}

// AppConfig general application settings.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig selects and configures the store.
// When DatabaseURL is set it wins over the individual fields.
type DBConfig struct {
	Driver      string // postgres | sqlite
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	SQLitePath  string
}

// ConnectionString returns DatabaseURL when set, otherwise the DSN built from the fields.
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN builds a postgres URL, escaping special characters in the password.
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

// JWTConfig token settings.
type JWTConfig struct {
	Secret     string
	Expiration int // minutes
	Issuer     string
}

// HTTPConfig listen address.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LedgerConfig tunes the transition engine.
type LedgerConfig struct {
	StrictOwnership bool
	MaxRetries      int
}

// MirrorConfig configures the optional external mirror.
type MirrorConfig struct {
	RedisURL     string
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

// Enabled reports whether a mirror target is configured.
func (c MirrorConfig) Enabled() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

// Load reads configuration. Environment variables win over file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // optional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			Name:     v.GetString("APP_NAME"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(v.GetString("DB_DRIVER")),
			DatabaseURL: v.GetString("DATABASE_URL"),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetInt("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			SQLitePath:  v.GetString("SQLITE_PATH"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			Expiration: v.GetInt("JWT_EXPIRATION_MINUTES"),
			Issuer:     v.GetString("JWT_ISSUER"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("PORT"),
		},
		Ledger: LedgerConfig{
			StrictOwnership: v.GetBool("LEDGER_STRICT_OWNERSHIP"),
			MaxRetries:      v.GetInt("LEDGER_MAX_RETRIES"),
		},
		Mirror: MirrorConfig{
			RedisURL:     v.GetString("MIRROR_REDIS_URL"),
			Stream:       v.GetString("MIRROR_STREAM"),
			PollInterval: v.GetDuration("MIRROR_POLL_INTERVAL"),
			BatchSize:    v.GetInt("MIRROR_BATCH_SIZE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "supplychain-ledger")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "supplychain")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "data/ledger.db")
	v.SetDefault("JWT_EXPIRATION_MINUTES", 30)
	v.SetDefault("JWT_ISSUER", "supplychain-ledger")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("PORT", 3000)
	v.SetDefault("LEDGER_STRICT_OWNERSHIP", false)
	v.SetDefault("LEDGER_MAX_RETRIES", 3)
	v.SetDefault("MIRROR_STREAM", "supplychain:ledger")
	v.SetDefault("MIRROR_POLL_INTERVAL", "2s")
	v.SetDefault("MIRROR_BATCH_SIZE", 50)
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.JWT.Secret == "" {
		if c.App.Env == "production" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWT.Secret = "dev-secret-change-me"
	}
	if c.Ledger.MaxRetries < 1 {
		c.Ledger.MaxRetries = 1
	}
	return nil
}
