// Package config loads folioserve settings from defaults, an optional YAML
// file and FOLIOSERVE_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cyberinferno/folioserve/rendercache"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOLIOSERVE_"

// Config is the complete process configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Cache  CacheConfig  `yaml:"cache"`
	// SiteFile is a YAML portfolio definition; empty uses the built-in one.
	SiteFile string `yaml:"site_file"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// WriteTimeout bounds each response write; 0 disables it.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxHandlers caps concurrent handlers; 0 means unbounded.
	MaxHandlers int64 `yaml:"max_handlers"`
	// RaiseFileLimit lifts the soft open-file limit to the hard limit at
	// startup.
	RaiseFileLimit bool `yaml:"raise_file_limit"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// CacheConfig configures the render cache.
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
}

// Default returns the configuration used when nothing overrides it:
// loopback on port 8080, no timeouts, no handler cap, info logs as JSON and
// an in-memory render cache.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Backend: rendercache.BackendMemory,
		},
	}
}

// Addr returns host:port for the listener.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// CacheOptions maps the cache section onto rendercache.Options.
func (c Config) CacheOptions() rendercache.Options {
	return rendercache.Options{
		Backend:       c.Cache.Backend,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword,
		RedisDB:       c.Cache.RedisDB,
		Prefix:        c.Cache.Prefix,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, then validates it.
//
// Parameters:
//   - path: YAML file path, or ""
//
// Returns:
//   - The validated Config, or the first error encountered
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// ApplyEnv overrides fields from environment variables found by lookup:
// FOLIOSERVE_HOST, FOLIOSERVE_PORT, FOLIOSERVE_LOG_LEVEL,
// FOLIOSERVE_LOG_FORMAT, FOLIOSERVE_CACHE_BACKEND, FOLIOSERVE_REDIS_ADDR and
// FOLIOSERVE_SITE_FILE.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HOST":          &c.Server.Host,
		"LOG_LEVEL":     &c.Log.Level,
		"LOG_FORMAT":    &c.Log.Format,
		"CACHE_BACKEND": &c.Cache.Backend,
		"REDIS_ADDR":    &c.Cache.RedisAddr,
		"SITE_FILE":     &c.SiteFile,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT %q: %w", EnvPrefix, v, err)
		}
		c.Server.Port = port
	}

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must not be negative")
	}
	if c.Server.MaxHandlers < 0 {
		return fmt.Errorf("server.max_handlers must not be negative")
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format %q must be json or console", c.Log.Format)
	}

	switch c.Cache.Backend {
	case "", rendercache.BackendNone, rendercache.BackendMemory:
	case rendercache.BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of none, memory, redis", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	return nil
}
