package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Allowed browser origins for credentialed cross-origin requests.
const (
	ProductionOrigin  = "http://chat.your-domain.com"
	DevelopmentOrigin = "http://localhost:5173"
)

// ModeProduction is the only NODE_ENV value treated differently from the rest.
const ModeProduction = "production"

// StartupPolicy controls what happens when the database cannot be reached at boot
type StartupPolicy string

const (
	// StartupPolicyTolerate serves traffic while the connection is retried in the background (default)
	StartupPolicyTolerate StartupPolicy = "tolerate"
	// StartupPolicyRequire aborts startup if the database cannot be reached
	StartupPolicyRequire StartupPolicy = "require"
)

// Supported database drivers
const (
	DriverMongoDB = "mongodb"
	DriverSQLite  = "sqlite"
)

// Config holds all configuration for the chat server. It is built once by
// LoadConfig and passed explicitly to every component.
type Config struct {
	// Port is the TCP port the HTTP server binds (PORT)
	Port int `mapstructure:"port"`
	// NodeEnv is the execution mode (NODE_ENV); only "production" is special
	NodeEnv string `mapstructure:"node_env"`

	Database struct {
		Driver         string        `mapstructure:"driver"`
		URI            string        `mapstructure:"uri"`
		Name           string        `mapstructure:"name"`
		SQLitePath     string        `mapstructure:"sqlite_path"`
		MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
		StartupPolicy  StartupPolicy `mapstructure:"startup_policy"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
		ConnectRetries int           `mapstructure:"connect_retries"`
		RetryDelay     time.Duration `mapstructure:"retry_delay"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret  string        `mapstructure:"jwt_secret"`
		JWTExpiry  time.Duration `mapstructure:"jwt_expiry"`
		BcryptCost int           `mapstructure:"bcrypt_cost"`
	} `mapstructure:"auth"`

	HTTP struct {
		JSONBodyLimit        int64         `mapstructure:"json_body_limit"`
		ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
		ReadHeaderTimeout    time.Duration `mapstructure:"read_header_timeout"`
		TrustProxy           bool          `mapstructure:"trust_proxy"`
		TrustedProxyNetworks []string      `mapstructure:"trusted_proxy_networks"`
	} `mapstructure:"http"`

	RateLimit struct {
		Auth struct {
			Limit  int           `mapstructure:"limit"`
			Window time.Duration `mapstructure:"window"`
			Burst  int           `mapstructure:"burst"`
		} `mapstructure:"auth"`
		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
			PoolSize int    `mapstructure:"pool_size"`
		} `mapstructure:"redis"`
	} `mapstructure:"rate_limit"`

	Cache struct {
		UserSize int           `mapstructure:"user_size"`
		UserTTL  time.Duration `mapstructure:"user_ttl"`
	} `mapstructure:"cache"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// IsProduction reports whether the process runs in production mode
func (c *Config) IsProduction() bool {
	return c.NodeEnv == ModeProduction
}

// AllowedOrigin returns the single origin allowed to make credentialed
// cross-origin requests for the current mode.
func (c *Config) AllowedOrigin() string {
	if c.IsProduction() {
		return ProductionOrigin
	}
	return DevelopmentOrigin
}

// ListenAddr returns the address the HTTP server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RedisEnabled reports whether distributed rate limiting is configured
func (c *Config) RedisEnabled() bool {
	return c.RateLimit.Redis.Addr != ""
}

// LogLevel returns the configured log level, falling back to a mode-based default
func (c *Config) LogLevel() string {
	if c.Log.Level != "" {
		return strings.ToLower(c.Log.Level)
	}
	if c.IsProduction() {
		return "info"
	}
	return "debug"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 0)
	v.SetDefault("node_env", "development")
	v.SetDefault("database.driver", DriverMongoDB)
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "chat_db")
	v.SetDefault("database.sqlite_path", "./data/chat.db")
	v.SetDefault("database.max_pool_size", 10)
	v.SetDefault("database.startup_policy", string(StartupPolicyTolerate))
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.connect_retries", 3)
	v.SetDefault("database.retry_delay", 2*time.Second)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", 7*24*time.Hour) // 7 days
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("http.json_body_limit", 5<<20) // 5MB, room for base64 images
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.trusted_proxy_networks", []string{})
	v.SetDefault("rate_limit.auth.limit", 10)
	v.SetDefault("rate_limit.auth.window", time.Minute)
	v.SetDefault("rate_limit.auth.burst", 10)
	v.SetDefault("rate_limit.redis.addr", "")
	v.SetDefault("rate_limit.redis.password", "")
	v.SetDefault("rate_limit.redis.db", 0)
	v.SetDefault("rate_limit.redis.pool_size", 10)
	v.SetDefault("cache.user_size", 1024)
	v.SetDefault("cache.user_ttl", time.Minute)
	v.SetDefault("log.level", "")
}

// loadFromEnv binds every setting to its environment variable
func loadFromEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Flat names kept compatible with existing deployments
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("node_env", "NODE_ENV")
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.uri", "MONGODB_URI")
	_ = v.BindEnv("database.name", "DB_NAME")
	_ = v.BindEnv("database.sqlite_path", "SQLITE_PATH")
	_ = v.BindEnv("database.max_pool_size", "DB_MAX_POOL_SIZE")
	_ = v.BindEnv("database.startup_policy", "DB_STARTUP_POLICY")
	_ = v.BindEnv("database.connect_timeout", "DB_CONNECT_TIMEOUT")
	_ = v.BindEnv("database.connect_retries", "DB_CONNECT_RETRIES")
	_ = v.BindEnv("database.retry_delay", "DB_RETRY_DELAY")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.jwt_expiry", "JWT_EXPIRY")
	_ = v.BindEnv("auth.bcrypt_cost", "BCRYPT_COST")
	_ = v.BindEnv("http.json_body_limit", "JSON_BODY_LIMIT")
	_ = v.BindEnv("http.shutdown_timeout", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("http.trust_proxy", "TRUST_PROXY")
	_ = v.BindEnv("http.trusted_proxy_networks", "TRUSTED_PROXY_NETWORKS")
	_ = v.BindEnv("rate_limit.auth.limit", "AUTH_RATE_LIMIT")
	_ = v.BindEnv("rate_limit.auth.window", "AUTH_RATE_WINDOW")
	_ = v.BindEnv("rate_limit.auth.burst", "AUTH_RATE_BURST")
	_ = v.BindEnv("rate_limit.redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("rate_limit.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("rate_limit.redis.db", "REDIS_DB")
	_ = v.BindEnv("cache.user_size", "USER_CACHE_SIZE")
	_ = v.BindEnv("cache.user_ttl", "USER_CACHE_TTL")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

// loadDotEnv loads variables from the given files into the process
// environment. Variables already set are not overridden and missing files are ignored.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from an optional .env file and the environment
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".env")
}

// LoadConfigFrom is LoadConfig with explicit dotenv file locations
func LoadConfigFrom(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	loadFromEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.Database.Driver = strings.ToLower(strings.TrimSpace(config.Database.Driver))
	config.Database.StartupPolicy = StartupPolicy(strings.ToLower(string(config.Database.StartupPolicy)))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d (must be 1-65535)", config.Port)
	}

	switch config.Database.Driver {
	case DriverMongoDB:
		if !strings.HasPrefix(config.Database.URI, "mongodb://") && !strings.HasPrefix(config.Database.URI, "mongodb+srv://") {
			return fmt.Errorf("invalid MongoDB URI: must start with mongodb:// or mongodb+srv://")
		}
		parsed, err := url.Parse(config.Database.URI)
		if err != nil {
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("invalid MongoDB URI: missing host")
		}
		if config.Database.Name == "" {
			return fmt.Errorf("database name cannot be empty")
		}
	case DriverSQLite:
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER: %q (must be %s or %s)", config.Database.Driver, DriverMongoDB, DriverSQLite)
	}

	switch config.Database.StartupPolicy {
	case StartupPolicyTolerate, StartupPolicyRequire:
	default:
		return fmt.Errorf("invalid DB_STARTUP_POLICY: %q (must be %s or %s)", config.Database.StartupPolicy, StartupPolicyTolerate, StartupPolicyRequire)
	}

	if config.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("DB_CONNECT_TIMEOUT must be positive")
	}
	if config.Database.ConnectRetries < 0 {
		return fmt.Errorf("DB_CONNECT_RETRIES cannot be negative")
	}

	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if config.IsProduction() && len(config.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters (256 bits) in production")
	}
	if config.Auth.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}

	if config.HTTP.JSONBodyLimit <= 0 {
		return fmt.Errorf("JSON_BODY_LIMIT must be positive")
	}
	if config.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}

	if config.RateLimit.Auth.Limit <= 0 || config.RateLimit.Auth.Window <= 0 {
		return fmt.Errorf("auth rate limit and window must be positive")
	}
	if config.RateLimit.Auth.Burst <= 0 {
		config.RateLimit.Auth.Burst = config.RateLimit.Auth.Limit
	}

	switch config.LogLevel() {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %q", config.Log.Level)
	}

	return nil
}
