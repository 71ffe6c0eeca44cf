// Package config loads the omniwp client configuration.
//
// The file is JSON5 (comments and trailing commas allowed) and lives at
// ~/.omniwp/config.json unless --config or OMNIWP_CONFIG says otherwise.
// A missing file is not an error: defaults plus environment overrides apply.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Environment variables recognised by Load.
const (
	EnvConfigPath   = "OMNIWP_CONFIG"
	EnvAPIURL       = "OMNIWP_API_URL"
	EnvDataDir      = "OMNIWP_DATA_DIR"
	EnvCacheBackend = "OMNIWP_CACHE_BACKEND"
	EnvRedisAddr    = "OMNIWP_REDIS_ADDR"
	EnvRedisPass    = "OMNIWP_REDIS_PASSWORD"
)

const (
	DefaultAPIURL  = "http://localhost:3001/api/v1"
	defaultDirName = ".omniwp"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the root configuration.
type Config struct {
	API       APIConfig       `json:"api"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Cache     CacheConfig     `json:"cache"`
	Storage   StorageConfig   `json:"storage"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// APIConfig configures the REST client.
type APIConfig struct {
	BaseURL           string   `json:"baseUrl"`
	Timeout           Duration `json:"timeout"`
	RequestsPerMinute int      `json:"requestsPerMinute"` // 0 disables client-side limiting
	Burst             int      `json:"burst"`
}

// WhatsAppConfig configures pairing and the background status poll.
type WhatsAppConfig struct {
	ConnectTimeout   Duration `json:"connectTimeout"`
	StatusInterval   Duration `json:"statusInterval"`
	StatusTimeout    Duration `json:"statusTimeout"`
	StatusRetries    int      `json:"statusRetries"`
	StatusRetryDelay Duration `json:"statusRetryDelay"`
}

// CacheConfig selects and sizes the query cache.
type CacheConfig struct {
	Backend       string              `json:"backend"`
	Size          int                 `json:"size"`
	TTL           Duration            `json:"ttl"`
	StaleTimes    map[string]Duration `json:"staleTimes,omitempty"`
	RedisAddr     string              `json:"redisAddr,omitempty"`
	RedisPassword string              `json:"redisPassword,omitempty"`
	RedisDB       int                 `json:"redisDb,omitempty"`
}

// StorageConfig locates the local database holding the persisted session.
type StorageConfig struct {
	DataDir      string `json:"dataDir"`
	EncryptToken bool   `json:"encryptToken"`
}

// TelemetryConfig configures OTLP trace export (only with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns the built-in configuration.
// Poll and stale windows match the web dashboard's query settings.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           DefaultAPIURL,
			Timeout:           Duration(30 * time.Second),
			RequestsPerMinute: 120,
			Burst:             10,
		},
		WhatsApp: WhatsAppConfig{
			ConnectTimeout:   Duration(5 * time.Minute),
			StatusInterval:   Duration(2 * time.Minute),
			StatusTimeout:    Duration(10 * time.Second),
			StatusRetries:    2,
			StatusRetryDelay: Duration(5 * time.Second),
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Size:    256,
			TTL:     Duration(10 * time.Minute),
			StaleTimes: map[string]Duration{
				"clients":               Duration(30 * time.Second),
				"orders":                Duration(30 * time.Second),
				"messages":              Duration(30 * time.Second),
				"whatsapp.status":       Duration(time.Minute),
				"whatsapp.availability": Duration(5 * time.Minute),
				"whatsapp.messages":     Duration(30 * time.Second),
			},
		},
		Storage: StorageConfig{
			DataDir:      filepath.Join("~", defaultDirName),
			EncryptToken: true,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "omniwp-cli",
		},
	}
}

// ResolvePath picks the config file path: explicit flag, then env, then default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return ExpandHome(flagValue)
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return ExpandHome(p)
	}
	return ExpandHome(filepath.Join("~", defaultDirName, "config.json"))
}

// Load reads the config file at path over the defaults and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(EnvCacheBackend); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv(EnvRedisPass); v != "" {
		c.Cache.RedisPassword = v
	}
}

func (c *Config) normalize() error {
	base, err := NormalizeBaseURL(c.API.BaseURL)
	if err != nil {
		return err
	}
	c.API.BaseURL = base
	c.Storage.DataDir = ExpandHome(c.Storage.DataDir)

	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	switch c.Cache.Backend {
	case "":
		c.Cache.Backend = CacheMemory
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redisAddr is required when cache.backend is %q", CacheRedis)
		}
	default:
		return fmt.Errorf("unknown cache.backend %q (want %q or %q)", c.Cache.Backend, CacheMemory, CacheRedis)
	}

	if c.WhatsApp.ConnectTimeout <= 0 {
		return errors.New("whatsapp.connectTimeout must be positive")
	}
	if c.WhatsApp.StatusInterval <= 0 {
		return errors.New("whatsapp.statusInterval must be positive")
	}
	if c.WhatsApp.StatusRetries < 0 {
		c.WhatsApp.StatusRetries = 0
	}
	return nil
}

// DBPath returns the local storage database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "local.db")
}

// StaleTime returns the staleness window for a cache resource, falling back to 30s.
func (c *Config) StaleTime(resource string) time.Duration {
	if d, ok := c.Cache.StaleTimes[resource]; ok && d > 0 {
		return d.Std()
	}
	return 30 * time.Second
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Duration is a time.Duration that reads "90s"-style strings or integer milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = `"` + s[1:len(s)-1] + `"`
	}
	if unq, err := strconv.Unquote(s); err == nil {
		parsed, err := time.ParseDuration(unq)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", unq, err)
		}
		*d = Duration(parsed)
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s: want a string like \"30s\" or milliseconds", s)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}
