package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrNoBackends       = errors.New("at least one backend is required")
	ErrNoAllowedOrigins = errors.New("at least one allowed CORS origin is required")
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	State       StateConfig       `mapstructure:"state"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Backends    []string          `mapstructure:"backends"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Transform   TransformConfig   `mapstructure:"transform"`
	Policies    PolicyConfig      `mapstructure:"policies"`
	Log         LogConfig         `mapstructure:"log"`
	Admin       AdminConfig       `mapstructure:"admin"`
	HealthCheck HealthCheckConfig `mapstructure:"healthcheck"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"` // larger request bodies get 413
}

// Driver is "redis" or "memory"
type StateConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// An empty DSN disables the request log
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"` // seconds
}

type TransformConfig struct {
	APIVersion        string `mapstructure:"api_version"`
	GatewayName       string `mapstructure:"gateway_name"`
	StaticPathSegment string `mapstructure:"static_path_segment"`
	StaticMaxAge      int    `mapstructure:"static_max_age"` // seconds
}

// Route policies are a list rather than a map so that route keys keep their
// exact case and punctuation.
type PolicyConfig struct {
	Default DefaultPolicy `mapstructure:"default"`
	Routes  []RouteConfig `mapstructure:"routes"`
}

type DefaultPolicy struct {
	CacheTTL  int             `mapstructure:"cache_ttl"` // seconds, 0 disables caching
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RouteConfig struct {
	Method    string           `mapstructure:"method"`
	Path      string           `mapstructure:"path"`
	CacheTTL  *int             `mapstructure:"cache_ttl"`
	RateLimit *RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Limit  int `mapstructure:"limit"`
	Window int `mapstructure:"window"` // seconds
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// An empty secret disables the admin routes
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type HealthCheckConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures int           `mapstructure:"max_failures"`
}

// Load reads the configuration file at path (json, yaml or toml, chosen by
// extension) and applies GATEWAY_ prefixed environment overrides, e.g.
// GATEWAY_REDIS_HOST or GATEWAY_BACKENDS="http://a:3001,http://b:3001".
// An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", 10<<20)

	v.SetDefault("state.driver", "redis")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("backends", []string{})

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Requested-With"})
	v.SetDefault("cors.max_age", 86400)

	v.SetDefault("transform.api_version", "v1")
	v.SetDefault("transform.gateway_name", "edge-gateway")
	v.SetDefault("transform.static_path_segment", "static")
	v.SetDefault("transform.static_max_age", 31536000)

	v.SetDefault("policies.default.cache_ttl", 60)
	v.SetDefault("policies.default.rate_limit.limit", 100)
	v.SetDefault("policies.default.rate_limit.window", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("admin.jwt_secret", "")

	v.SetDefault("healthcheck.endpoint", "/health")
	v.SetDefault("healthcheck.interval", 10*time.Second)
	v.SetDefault("healthcheck.timeout", 5*time.Second)
	v.SetDefault("healthcheck.max_failures", 3)
}

func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return ErrNoBackends
	}

	for _, b := range c.Backends {
		u, err := url.Parse(b)
		if err != nil {
			return fmt.Errorf("invalid backend %q: %w", b, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid backend %q: must be an absolute http(s) URL", b)
		}
	}

	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server: max_body_bytes must be positive")
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		return ErrNoAllowedOrigins
	}

	switch c.State.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown state driver: %s", c.State.Driver)
	}

	if err := c.Policies.Default.RateLimit.validate("default"); err != nil {
		return err
	}
	if c.Policies.Default.CacheTTL < 0 {
		return errors.New("policy default: cache_ttl must not be negative")
	}

	for _, r := range c.Policies.Routes {
		name := r.Method + " " + r.Path
		if r.Method == "" || r.Path == "" {
			return fmt.Errorf("policy %q: method and path are required", name)
		}
		if r.CacheTTL != nil && *r.CacheTTL < 0 {
			return fmt.Errorf("policy %q: cache_ttl must not be negative", name)
		}
		if r.RateLimit != nil {
			if err := r.RateLimit.validate(name); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r RateLimitConfig) validate(name string) error {
	if r.Limit <= 0 || r.Window <= 0 {
		return fmt.Errorf("policy %q: rate_limit limit and window must be positive", name)
	}
	return nil
}
