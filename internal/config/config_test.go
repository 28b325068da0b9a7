package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "server": {"port": "9090", "environment": "production", "read_timeout": "5s"},
  "state": {"driver": "memory"},
  "backends": ["http://app-1:3001", "http://app-2:3001"],
  "cors": {"allowed_origins": ["https://app.example.com", "https://admin.example.com"]},
  "policies": {
    "default": {"cache_ttl": 30, "rate_limit": {"limit": 50, "window": 60}},
    "routes": [
      {"method": "GET", "path": "/api/documents", "cache_ttl": 300},
      {"method": "POST", "path": "/api/auth/login", "rate_limit": {"limit": 5, "window": 900}},
      {"method": "GET", "path": "/api/v1.0/Reports", "cache_ttl": 0}
    ]
  }
}`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FromJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "memory", cfg.State.Driver)
	assert.Equal(t, []string{"http://app-1:3001", "http://app-2:3001"}, cfg.Backends)
	assert.Equal(t, "https://app.example.com", cfg.CORS.AllowedOrigins[0])

	assert.Equal(t, 30, cfg.Policies.Default.CacheTTL)
	assert.Equal(t, 50, cfg.Policies.Default.RateLimit.Limit)

	require.Len(t, cfg.Policies.Routes, 3)
	docs := cfg.Policies.Routes[0]
	assert.Equal(t, "GET", docs.Method)
	assert.Equal(t, "/api/documents", docs.Path)
	require.NotNil(t, docs.CacheTTL)
	assert.Equal(t, 300, *docs.CacheTTL)
	assert.Nil(t, docs.RateLimit)

	login := cfg.Policies.Routes[1]
	assert.Nil(t, login.CacheTTL)
	require.NotNil(t, login.RateLimit)
	assert.Equal(t, RateLimitConfig{Limit: 5, Window: 900}, *login.RateLimit)

	// case and dots survive decoding
	assert.Equal(t, "/api/v1.0/Reports", cfg.Policies.Routes[2].Path)
	require.NotNil(t, cfg.Policies.Routes[2].CacheTTL)
	assert.Equal(t, 0, *cfg.Policies.Routes[2].CacheTTL)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{"backends": ["http://localhost:3001"]}`))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.State.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, 60, cfg.Policies.Default.CacheTTL)
	assert.Equal(t, RateLimitConfig{Limit: 100, Window: 60}, cfg.Policies.Default.RateLimit)
	assert.Equal(t, 86400, cfg.CORS.MaxAge)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "v1", cfg.Transform.APIVersion)
	assert.Equal(t, 10*time.Second, cfg.HealthCheck.Interval)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Empty(t, cfg.Admin.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_REDIS_HOST", "redis.internal")
	t.Setenv("GATEWAY_SERVER_PORT", "7000")
	t.Setenv("GATEWAY_BACKENDS", "http://a:1,http://b:2")
	t.Setenv("GATEWAY_POLICIES_DEFAULT_RATE_LIMIT_LIMIT", "10")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, []string{"http://a:1", "http://b:2"}, cfg.Backends)
	assert.Equal(t, 10, cfg.Policies.Default.RateLimit.Limit)
}

func TestLoad_YAML(t *testing.T) {
	body := `
backends:
  - http://app:3001
policies:
  routes:
    - method: GET
      path: /api/documents
      cache_ttl: 300
`
	cfg, err := Load(writeConfig(t, "config.yaml", body))
	require.NoError(t, err)
	require.Len(t, cfg.Policies.Routes, 1)
	assert.Equal(t, 300, *cfg.Policies.Routes[0].CacheTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{MaxBodyBytes: 1 << 20},
			State:    StateConfig{Driver: "redis"},
			Backends: []string{"http://app:3001"},
			CORS:     CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			Policies: PolicyConfig{
				Default: DefaultPolicy{CacheTTL: 60, RateLimit: RateLimitConfig{Limit: 100, Window: 60}},
			},
		}
	}

	require.NoError(t, valid().Validate())

	t.Run("no backends", func(t *testing.T) {
		cfg := valid()
		cfg.Backends = nil
		assert.ErrorIs(t, cfg.Validate(), ErrNoBackends)
	})

	t.Run("relative backend", func(t *testing.T) {
		cfg := valid()
		cfg.Backends = []string{"app:3001"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("no origins", func(t *testing.T) {
		cfg := valid()
		cfg.CORS.AllowedOrigins = nil
		assert.ErrorIs(t, cfg.Validate(), ErrNoAllowedOrigins)
	})

	t.Run("no body cap", func(t *testing.T) {
		cfg := valid()
		cfg.Server.MaxBodyBytes = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := valid()
		cfg.State.Driver = "memcached"
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero window", func(t *testing.T) {
		cfg := valid()
		cfg.Policies.Routes = []RouteConfig{{Method: "POST", Path: "/x", RateLimit: &RateLimitConfig{Limit: 5}}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative ttl", func(t *testing.T) {
		cfg := valid()
		ttl := -1
		cfg.Policies.Routes = []RouteConfig{{Method: "GET", Path: "/x", CacheTTL: &ttl}}
		assert.Error(t, cfg.Validate())
	})
}
