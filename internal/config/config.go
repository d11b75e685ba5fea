// Package config loads service configuration in three layers: built-in
// defaults, an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"poigraph/internal/auth"
	"poigraph/internal/logging"
	"poigraph/internal/model"
	"poigraph/internal/pipeline"
	"poigraph/internal/route"
	"poigraph/internal/store"
	"poigraph/internal/webhooks"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "POIGRAPH_CONFIG"

// envPrefix marks variables mapped by path: POIGRAPH_ROUTE__CACHE_TTL -> route.cache_ttl.
const envPrefix = "POIGRAPH_"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{"poigraph.yaml", "poigraph.yml", "/etc/poigraph/config.yaml"}

type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Auth       auth.Config       `koanf:"auth"`
	Log        logging.Config    `koanf:"log"`
	Postgres   PostgresConfig    `koanf:"postgres"`
	Neo4j      store.Neo4jConfig `koanf:"neo4j"`
	Redis      RedisConfig       `koanf:"redis"`
	Route      route.Options     `koanf:"route"`
	Pipeline   pipeline.Options  `koanf:"pipeline"`
	Categories CategoriesConfig  `koanf:"categories"`
	Webhooks   webhooks.Config   `koanf:"webhooks"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	// Port, when set, overrides the port of Addr.
	Port              int           `koanf:"port" validate:"gte=0,lte=65535"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// RateRPS limits route queries per second across all clients. Zero disables limiting.
	RateRPS   float64 `koanf:"rate_rps" validate:"gte=0"`
	RateBurst int     `koanf:"rate_burst" validate:"gte=0"`
}

// ListenAddr is the address the HTTP server binds.
func (s ServerConfig) ListenAddr() string {
	if s.Port > 0 { return ":" + strconv.Itoa(s.Port) }
	return s.Addr
}

type PostgresConfig struct {
	// DSN of the POI database. Empty selects the in-memory repository.
	DSN    string       `koanf:"dsn"`
	Region model.Region `koanf:"region"`
}

type RedisConfig struct {
	// URL of the event broker. Empty keeps events in process.
	URL     string `koanf:"url" validate:"omitempty,url"`
	Channel string `koanf:"channel" validate:"required"`
}

type CategoriesConfig struct {
	// File is a YAML category table; empty uses DefaultCategories.
	File string `koanf:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RateRPS:           50,
			RateBurst:         100,
		},
		Auth:     auth.DefaultConfig(),
		Log:      logging.Config{Level: "info", Format: "json"},
		Neo4j:    store.Neo4jConfig{Database: "neo4j"},
		Redis:    RedisConfig{Channel: "poigraph:rebuilds"},
		Route:    route.DefaultOptions(),
		Pipeline: pipeline.DefaultOptions(),
		Webhooks: webhooks.DefaultConfig(),
	}
}

// Load reads configuration. An empty path falls back to PathEnvVar, then DefaultPaths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path = findFile(path); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// comma separated lists arrive from the environment as one string
	if v, ok := k.Get("webhooks.urls").(string); ok {
		if err := k.Set("webhooks.urls", splitList(v)); err != nil {
			return nil, fmt.Errorf("webhooks.urls: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func findFile(path string) string {
	if path != "" { return path }
	if p := os.Getenv(PathEnvVar); p != "" { return p }
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil { return p }
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// legacyEnv keeps the plain variable names deployments already set.
var legacyEnv = map[string]string{
	"port":             "server.port",
	"rate_rps":         "server.rate_rps",
	"rate_burst":       "server.rate_burst",
	"auth_mode":        "auth.mode",
	"auth_hmac_secret": "auth.hmac_secret",
	"admin_token":      "auth.token",
	"log_level":        "log.level",
	"log_format":       "log.format",
	"database_url":     "postgres.dsn",
	"neo4j_uri":        "neo4j.uri",
	"neo4j_user":       "neo4j.username",
	"neo4j_password":   "neo4j.password",
	"neo4j_database":   "neo4j.database",
	"redis_url":        "redis.url",
	"webhook_urls":     "webhooks.urls",
	"webhook_secret":   "webhooks.secret",
}

func envTransform(key string) string {
	if strings.HasPrefix(key, envPrefix) {
		if key == PathEnvVar { return "" }
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".")
	}
	if mapped, ok := legacyEnv[strings.ToLower(key)]; ok {
		return mapped
	}
	// anything else would pollute the tree
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	r := c.Postgres.Region
	if !r.Empty() && (r.MinLat > r.MaxLat || r.MinLon > r.MaxLon) {
		return errors.New("postgres.region: min bounds exceed max bounds")
	}
	return nil
}
