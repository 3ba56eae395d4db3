package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix namespaces the structured environment overrides, e.g.
// MOVIEVAULT_CATALOG__SESSION_TIMEOUT=45m.
const EnvPrefix = "MOVIEVAULT_"

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/movievault/config.yaml",
}

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `koanf:"basic_config"`
	Databases   map[string]DatabaseConfig `koanf:"databases"`
	Redis       RedisConfig               `koanf:"redis"`
	Catalog     CatalogConfig             `koanf:"catalog"`
	Log         LogConfig                 `koanf:"log"`
}

type BasicConfig struct {
	ServerAddress string `koanf:"server_address"`
	DBType        string `koanf:"db_type"`

	ConnectAttempts     int           `koanf:"connect_attempts"`
	ConnectInitialDelay time.Duration `koanf:"connect_initial_delay"`
	ConnectMaxDelay     time.Duration `koanf:"connect_max_delay"`

	// OutboundURL points at the chat bridge that delivers replies. Empty
	// means replies are only logged.
	OutboundURL       string        `koanf:"outbound_url"`
	OutboundToken     string        `koanf:"outbound_token"`
	OutboundTimeout   time.Duration `koanf:"outbound_timeout"`
	OutboundPerSecond float64       `koanf:"outbound_per_second"`
	OutboundBurst     int           `koanf:"outbound_burst"`

	// EventToken, when set, must be presented as a bearer token by the
	// bridge posting inbound events.
	EventToken string `koanf:"event_token"`

	QueueSize         int           `koanf:"queue_size"`
	WorkerIdleTimeout time.Duration `koanf:"worker_idle_timeout"`
	JobTimeout        time.Duration `koanf:"job_timeout"`
}

type DatabaseConfig struct {
	DSN      string `koanf:"dsn"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	DBName   string `koanf:"db_name"`
	Params   string `koanf:"params"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	// TrackedKey is the sorted set holding messages awaiting deletion.
	TrackedKey string `koanf:"tracked_key"`
}

// CatalogConfig carries the bot's domain settings.
type CatalogConfig struct {
	SearchRoomID  int64 `koanf:"search_room_id"`
	StorageRoomID int64 `koanf:"storage_room_id"`
	AdminID       int64 `koanf:"admin_id"`

	// InviteURL is attached to the /start greeting.
	InviteURL string `koanf:"invite_url"`

	SessionTimeout    time.Duration `koanf:"session_timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	DirectLimit     int `koanf:"direct_limit"`
	SuggestionLimit int `koanf:"suggestion_limit"`
	SuggestionChars int `koanf:"suggestion_chars"`

	MessageRetention time.Duration `koanf:"message_retention"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	SweepBackoff     time.Duration `koanf:"sweep_backoff"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:       ":8088",
			DBType:              "sqlite3",
			ConnectAttempts:     5,
			ConnectInitialDelay: time.Second,
			ConnectMaxDelay:     30 * time.Second,
			OutboundTimeout:     10 * time.Second,
			OutboundPerSecond:   20,
			OutboundBurst:       5,
			QueueSize:           32,
			WorkerIdleTimeout:   10 * time.Minute,
			JobTimeout:          time.Minute,
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "./data/movievault.db?_foreign_keys=on"},
			"mysql":   {Host: "127.0.0.1", Port: 3306, DBName: "movievault", Params: "parseTime=true&charset=utf8mb4"},
		},
		Redis: RedisConfig{
			Host:       "127.0.0.1",
			Port:       6379,
			TrackedKey: "movievault:tracked_messages",
		},
		Catalog: CatalogConfig{
			InviteURL:         "https://t.me/+ERz0bGWEHHBmNTU9",
			SessionTimeout:    30 * time.Minute,
			RateLimitRequests: 5,
			RateLimitWindow:   time.Minute,
			DirectLimit:       10,
			SuggestionLimit:   5,
			SuggestionChars:   3,
			MessageRetention:  24 * time.Hour,
			SweepInterval:     time.Hour,
			SweepBackoff:      10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, an optional YAML file and the environment. An empty
// path falls back to CONFIG_PATH and then DefaultConfigPaths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := k.Load(file.Provider(absPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", absPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validateBase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// legacyEnv maps the variable names the bot has always been deployed with.
var legacyEnv = map[string]string{
	"search_group_id":  "catalog.search_room_id",
	"storage_group_id": "catalog.storage_room_id",
	"admin_id":         "catalog.admin_id",
	"db_url":           "databases.mysql.dsn",
	"token":            "basic_config.outbound_token",
	"log_level":        "log.level",
	"log_format":       "log.format",
}

// envTransformFunc maps MOVIEVAULT_SECTION__FIELD and the legacy names to
// koanf paths. Anything else is ignored.
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)
	if lower == "port" {
		return "basic_config.server_address"
	}
	if mapped, ok := legacyEnv[lower]; ok {
		return mapped
	}
	prefix := strings.ToLower(EnvPrefix)
	if !strings.HasPrefix(lower, prefix) {
		return ""
	}
	return strings.ReplaceAll(strings.TrimPrefix(lower, prefix), "__", ".")
}

// Validate checks everything the long-running bot needs. Operator commands
// only require the subset checked by Load.
func (c *Config) Validate() error {
	var errs []error
	if c.Catalog.SearchRoomID == 0 {
		errs = append(errs, errors.New("catalog.search_room_id must be configured"))
	}
	if c.Catalog.StorageRoomID == 0 {
		errs = append(errs, errors.New("catalog.storage_room_id must be configured"))
	}
	if err := c.validateBase(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateBase() error {
	var errs []error
	if c.Catalog.RateLimitRequests <= 0 || c.Catalog.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("catalog rate limit must be positive"))
	}
	if c.Catalog.SessionTimeout <= 0 {
		errs = append(errs, errors.New("catalog.session_timeout must be positive"))
	}
	c.BasicConfig.DBType = strings.ToLower(c.BasicConfig.DBType)
	if c.BasicConfig.DBType == "sqlite" {
		c.BasicConfig.DBType = "sqlite3"
	}
	if _, ok := c.Databases[c.BasicConfig.DBType]; !ok {
		errs = append(errs, fmt.Errorf("database config for %s not found", c.BasicConfig.DBType))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.BasicConfig.ServerAddress = normalizeAddress(c.BasicConfig.ServerAddress)
	return nil
}

// normalizeAddress accepts a bare port as PORT has always been given.
func normalizeAddress(addr string) string {
	if addr == "" {
		return ":8088"
	}
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
