// Package config carga la configuración del engine desde YAML, con
// defaults sanos y overrides por variables de entorno OFFSYNC_*.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		// memory | fs | bolt | redis
		Driver string `yaml:"driver"`
		FS     struct {
			Dir string `yaml:"dir"`
		} `yaml:"fs"`
		Bolt struct {
			Path string `yaml:"path"`
		} `yaml:"bolt"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Encrypt struct {
			// Enabled activa cifrado at-rest; la clave viene de
			// OFFSYNC_MASTER_KEY (ver storage/secure).
			Enabled bool `yaml:"enabled"`
		} `yaml:"encrypt"`
	} `yaml:"storage"`

	Cache struct {
		DefaultTTL    string `yaml:"default_ttl"`
		SchemaVersion int    `yaml:"schema_version"`
		// Categories mapea categoría de key -> TTL ("league: 5m").
		Categories map[string]string `yaml:"categories"`
	} `yaml:"cache"`

	Sync struct {
		// BaseURL del backend contra el que se entregan las mutaciones.
		BaseURL     string `yaml:"base_url"`
		Interval    string `yaml:"interval"`
		MaxAttempts int    `yaml:"max_attempts"`
		Backoff     struct {
			Base string `yaml:"base"`
			Max  string `yaml:"max"`
		} `yaml:"backoff"`
	} `yaml:"sync"`

	Network struct {
		ProbeURL      string `yaml:"probe_url"`
		ProbeInterval string `yaml:"probe_interval"`
	} `yaml:"network"`

	Debug struct {
		// Addr del listener HTTP de debug (status/queue/metrics).
		// Vacío lo desactiva.
		Addr string `yaml:"addr"`
	} `yaml:"debug"`
}

// Default retorna la configuración con todos los defaults aplicados.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load lee el YAML en path, aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnv()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.DefaultTTL == "" {
		c.Cache.DefaultTTL = "5m"
	}
	if c.Cache.SchemaVersion == 0 {
		c.Cache.SchemaVersion = 1
	}
	if c.Sync.Interval == "" {
		c.Sync.Interval = "30s"
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 3
	}
	if c.Sync.Backoff.Base == "" {
		c.Sync.Backoff.Base = "30s"
	}
	if c.Sync.Backoff.Max == "" {
		c.Sync.Backoff.Max = "5m"
	}
	if c.Network.ProbeInterval == "" {
		c.Network.ProbeInterval = "10s"
	}
}

func (c *Config) applyEnv() {
	if v, ok := getEnvStr("OFFSYNC_APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("OFFSYNC_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("OFFSYNC_STORAGE_DIR"); ok {
		c.Storage.FS.Dir = v
	}
	if v, ok := getEnvStr("OFFSYNC_BOLT_PATH"); ok {
		c.Storage.Bolt.Path = v
	}
	if v, ok := getEnvStr("OFFSYNC_REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvInt("OFFSYNC_REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvBool("OFFSYNC_STORAGE_ENCRYPT"); ok {
		c.Storage.Encrypt.Enabled = v
	}
	if v, ok := getEnvStr("OFFSYNC_SYNC_BASE_URL"); ok {
		c.Sync.BaseURL = v
	}
	if v, ok := getEnvDur("OFFSYNC_SYNC_INTERVAL"); ok {
		c.Sync.Interval = v.String()
	}
	if v, ok := getEnvInt("OFFSYNC_SYNC_MAX_ATTEMPTS"); ok {
		c.Sync.MaxAttempts = v
	}
	if v, ok := getEnvStr("OFFSYNC_PROBE_URL"); ok {
		c.Network.ProbeURL = v
	}
	if v, ok := getEnvStr("OFFSYNC_DEBUG_ADDR"); ok {
		c.Debug.Addr = v
	}
}

func (c *Config) validate() error {
	if _, err := c.DefaultTTL(); err != nil {
		return fmt.Errorf("config: cache.default_ttl: %w", err)
	}
	if _, err := c.CategoryTTLs(); err != nil {
		return err
	}
	if _, err := c.SyncInterval(); err != nil {
		return fmt.Errorf("config: sync.interval: %w", err)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("config: sync.max_attempts debe ser >= 1")
	}
	return nil
}

// ---- Duraciones parseadas ----

func (c *Config) DefaultTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.DefaultTTL)
}

// CategoryTTLs parsea la tabla de TTLs por categoría. La validación
// semántica (duplicados, negativos) la hace cache.NewTTLTable.
func (c *Config) CategoryTTLs() (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(c.Cache.Categories))
	for cat, s := range c.Cache.Categories {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("config: cache.categories[%s]: %w", cat, err)
		}
		out[cat] = d
	}
	return out, nil
}

func (c *Config) SyncInterval() (time.Duration, error) {
	return time.ParseDuration(c.Sync.Interval)
}

func (c *Config) BackoffBase() time.Duration {
	d, err := time.ParseDuration(c.Sync.Backoff.Base)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c *Config) BackoffMax() time.Duration {
	d, err := time.ParseDuration(c.Sync.Backoff.Max)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func (c *Config) ProbeInterval() time.Duration {
	d, err := time.ParseDuration(c.Network.ProbeInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
