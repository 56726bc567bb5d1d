package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("STUDY_ACCESS_CODE", "letmein")
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URI", "redis://cache:6379")
	t.Setenv("UPLOAD_THROTTLE", "45s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Upload.Throttle)
	assert.Equal(t, "TARGET_CATEGORY", cfg.Resolver.ReservedKey)
	assert.Equal(t, []string{"PHE"}, cfg.Resolver.PreserveCaseFor)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wellping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: staging
port: "7000"
mongo:
  uri: mongodb://db:27017
  database: pilot
upload:
  throttle: 1m
resolver:
  reservedKey: TARGET_CATEGORY
  reservedPrefix: "your "
  preserveCaseFor: [PHE, NIH]
  maxBranchHops: 10
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	setRequired(t)
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "7100", cfg.Port, "env overrides the file")
	assert.Equal(t, "pilot", cfg.Mongo.Database)
	assert.Equal(t, time.Minute, cfg.Upload.Throttle)
	assert.Equal(t, []string{"PHE", "NIH"}, cfg.Resolver.PreserveCaseFor)
	assert.Equal(t, 10, cfg.Resolver.MaxBranchHops)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = "0123456789abcdef0123"
		cfg.Auth.AccessCode = "letmein"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"unknown environment", func(c *Config) { c.Environment = "qa" }, true},
		{"zero throttle", func(c *Config) { c.Upload.Throttle = 0 }, true},
		{"bad upload url", func(c *Config) { c.Upload.URL = "not a url" }, true},
		{"debug in production", func(c *Config) {
			c.Environment = "production"
			c.Debug.IgnoreLogin = true
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	setRequired(t)
	t.Setenv("COLLABORATOR_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COLLABORATOR_TIMEOUT")
}
