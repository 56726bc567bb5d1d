// Package config loads service configuration from defaults, an optional
// YAML file named by CONFIG_FILE and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `yaml:"logLevel"`
	Port        string `yaml:"port" validate:"required,numeric"`

	Mongo Mongo `yaml:"mongo"`
	Redis Redis `yaml:"redis"`
	Auth  Auth  `yaml:"auth"`
	Study Study `yaml:"study"`

	Upload   Upload   `yaml:"upload"`
	Resolver Resolver `yaml:"resolver"`
	Debug    Debug    `yaml:"debug"`
	CORS     CORS     `yaml:"cors"`

	// CollaboratorTimeout bounds every store, queue and ping-record call
	// made on behalf of a survey session.
	CollaboratorTimeout time.Duration `yaml:"collaboratorTimeout" validate:"gt=0"`
}

type Mongo struct {
	URI      string `yaml:"uri" validate:"required"`
	Database string `yaml:"database" validate:"required"`
}

type Redis struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type Auth struct {
	JWTSecret  string        `yaml:"jwtSecret" validate:"required,min=16"`
	AccessCode string        `yaml:"accessCode" validate:"required"`
	TokenTTL   time.Duration `yaml:"tokenTTL" validate:"gt=0"`
}

type Study struct {
	// File is loaded into Mongo at startup when set; otherwise the study
	// stored by cmd/seed is used.
	File string `yaml:"file"`
}

type Upload struct {
	// Throttle is the minimum wall-clock time between two uploads of
	// partial data from the same session.
	Throttle time.Duration `yaml:"throttle" validate:"gt=0"`
	// URL overrides studyInfo.serverURL.
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type Resolver struct {
	ReservedKey     string   `yaml:"reservedKey" validate:"required"`
	ReservedPrefix  string   `yaml:"reservedPrefix"`
	PreserveCaseFor []string `yaml:"preserveCaseFor"`
	MaxBranchHops   int      `yaml:"maxBranchHops" validate:"gt=0"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins" validate:"required,min=1"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
}

// Debug toggles only take effect outside production.
type Debug struct {
	IgnoreLogin            bool `yaml:"ignoreLogin"`
	IgnoreNotificationTime bool `yaml:"ignoreNotificationTime"`
}

func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Port:        "8080",
		Mongo: Mongo{
			URI:      "mongodb://localhost:27017",
			Database: "wellping",
		},
		Redis: Redis{Addr: "localhost:6379"},
		Auth: Auth{
			TokenTTL: 30 * 24 * time.Hour,
		},
		Upload: Upload{
			Throttle: 30 * time.Second,
			Timeout:  20 * time.Second,
		},
		Resolver: Resolver{
			ReservedKey:     "TARGET_CATEGORY",
			ReservedPrefix:  "your ",
			PreserveCaseFor: []string{"PHE"},
			MaxBranchHops:   64,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		CollaboratorTimeout: 5 * time.Second,
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Port = getEnv("PORT", c.Port)
	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DATABASE", c.Mongo.Database)
	c.Redis.Addr = strings.TrimPrefix(getEnv("REDIS_URI", c.Redis.Addr), "redis://")
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AccessCode = getEnv("STUDY_ACCESS_CODE", c.Auth.AccessCode)
	c.Study.File = getEnv("STUDY_FILE", c.Study.File)
	c.Upload.URL = getEnv("UPLOAD_URL", c.Upload.URL)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("CORS_ALLOWED_HEADERS"); v != "" {
		c.CORS.AllowedHeaders = splitList(v)
	}

	var err error
	if c.Upload.Throttle, err = getEnvDuration("UPLOAD_THROTTLE", c.Upload.Throttle); err != nil {
		return err
	}
	if c.CollaboratorTimeout, err = getEnvDuration("COLLABORATOR_TIMEOUT", c.CollaboratorTimeout); err != nil {
		return err
	}
	if v := os.Getenv("DEBUG_IGNORE_LOGIN"); v != "" {
		c.Debug.IgnoreLogin, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("DEBUG_IGNORE_NOTIFICATION_TIME"); v != "" {
		c.Debug.IgnoreNotificationTime, _ = strconv.ParseBool(v)
	}
	return nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.IsProduction() && (c.Debug.IgnoreLogin || c.Debug.IgnoreNotificationTime) {
		return fmt.Errorf("debug toggles must be off in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
