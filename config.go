package permgate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Version   uint16                      `json:"version" yaml:"version"`
	Backend   BackendConfig               `json:"backend" yaml:"backend"`
	Session   SessionConfig               `json:"session" yaml:"session"`
	Cache     CacheConfig                 `json:"cache" yaml:"cache"`
	Fallback  FallbackConfig              `json:"fallback" yaml:"fallback"`
	Server    ServerConfig                `json:"server" yaml:"server"`
	LoginPath string                      `json:"login_path" yaml:"login_path"`
	Menu      []MenuItem                  `json:"menu" yaml:"menu"`
	Routes    []Route                     `json:"routes" yaml:"routes"`
	Policies  map[Resource]ResourcePolicy `json:"policies,omitempty" yaml:"policies,omitempty"`
}

type BackendConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	TimeoutMs int64  `json:"timeout_ms" yaml:"timeout_ms"`
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// Session drivers
const (
	SessionDriverMemory = "memory"
	SessionDriverSQLite = "sqlite"
	SessionDriverRedis  = "redis"
)

type SessionConfig struct {
	Driver       string `json:"driver" yaml:"driver"`
	DSN          string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	RedisAddr    string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisDB      int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisPrefix  string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
	CookieName   string `json:"cookie_name" yaml:"cookie_name"`
	CookieSecure bool   `json:"cookie_secure" yaml:"cookie_secure"`
}

// CacheConfig sizes the ristretto cache of live per-session stores.
type CacheConfig struct {
	NumCounters int64 `json:"num_counters" yaml:"num_counters"`
	MaxCost     int64 `json:"max_cost" yaml:"max_cost"`
	BufferItems int64 `json:"buffer_items" yaml:"buffer_items"`
}

type FallbackConfig struct {
	// Strict disables the cached-user fallback when the permissions endpoint fails.
	Strict bool `json:"strict" yaml:"strict"`
}

type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	StaticDir      string   `json:"static_dir,omitempty" yaml:"static_dir,omitempty"`
}

// DefaultConfig returns a configuration that runs against a local backend
// with in-memory sessions, the console's menu and its route table.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Backend: BackendConfig{
			BaseURL:   "http://localhost:5000/api",
			TimeoutMs: 10000,
		},
		Session: SessionConfig{
			Driver:      SessionDriverMemory,
			RedisPrefix: "permgate:session:",
			CookieName:  "permgate_session",
		},
		Cache: CacheConfig{
			NumCounters: 10000,
			MaxCost:     1000,
			BufferItems: 64,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		LoginPath: RouteLogin,
		Menu:      DefaultMenu(),
		Routes:    DefaultRoutes(),
	}
}

// Validate checks the configuration. Permissions inside menu and routes are
// already validated while decoding.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return Wrap(CodeInvalidConfig, "backend.base_url is required", nil)
	}
	if c.Backend.TimeoutMs < 0 {
		return Wrap(CodeInvalidConfig, "backend.timeout_ms must not be negative", nil)
	}
	switch c.Session.Driver {
	case SessionDriverMemory:
	case SessionDriverSQLite:
		if c.Session.DSN == "" {
			return Wrap(CodeInvalidConfig, "session.dsn is required for the sqlite driver", nil)
		}
	case SessionDriverRedis:
		if c.Session.RedisAddr == "" {
			return Wrap(CodeInvalidConfig, "session.redis_addr is required for the redis driver", nil)
		}
	default:
		return Wrap(CodeInvalidConfig, fmt.Sprintf("session.driver %q is not supported", c.Session.Driver), nil)
	}
	if c.Session.CookieName == "" {
		return Wrap(CodeInvalidConfig, "session.cookie_name is required", nil)
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return Wrap(CodeInvalidConfig, "login_path must start with /", nil)
	}
	for r := range c.Policies {
		if !r.Known() {
			return Wrap(CodeInvalidConfig, fmt.Sprintf("policies: unknown resource %q", r), nil)
		}
	}
	if err := ValidateMenu(c.Menu); err != nil {
		return err
	}
	if _, err := NewRouteTable(c.Routes); err != nil {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from PERMGATE_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PERMGATE_BACKEND_URL", &c.Backend.BaseURL)
	str("PERMGATE_SESSION_DRIVER", &c.Session.Driver)
	str("PERMGATE_SESSION_DSN", &c.Session.DSN)
	str("PERMGATE_REDIS_ADDR", &c.Session.RedisAddr)
	str("PERMGATE_COOKIE_NAME", &c.Session.CookieName)
	str("PERMGATE_ADDR", &c.Server.Addr)
	str("PERMGATE_STATIC_DIR", &c.Server.StaticDir)

	if v, ok := lookup("PERMGATE_BACKEND_TIMEOUT_MS"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Wrap(CodeInvalidConfig, "PERMGATE_BACKEND_TIMEOUT_MS", err)
		}
		c.Backend.TimeoutMs = n
	}
	if v, ok := lookup("PERMGATE_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Wrap(CodeInvalidConfig, "PERMGATE_REDIS_DB", err)
		}
		c.Session.RedisDB = n
	}
	if v, ok := lookup("PERMGATE_STRICT_FALLBACK"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Wrap(CodeInvalidConfig, "PERMGATE_STRICT_FALLBACK", err)
		}
		c.Fallback.Strict = b
	}
	if v, ok := lookup("PERMGATE_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}

// StoreOptions translates the configuration into Store options.
func (c *Config) StoreOptions() []StoreOption {
	var opts []StoreOption
	if c.Fallback.Strict {
		opts = append(opts, WithStrictFallback())
	}
	if len(c.Policies) > 0 {
		opts = append(opts, WithResourcePolicies(c.Policies))
	}
	return opts
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = def.Backend.BaseURL
	}
	if c.Backend.TimeoutMs == 0 {
		c.Backend.TimeoutMs = def.Backend.TimeoutMs
	}
	if c.Session.Driver == "" {
		c.Session.Driver = def.Session.Driver
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = def.Session.RedisPrefix
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = def.Session.CookieName
	}
	if c.Cache.NumCounters == 0 {
		c.Cache = def.Cache
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.LoginPath == "" {
		c.LoginPath = def.LoginPath
	}
	if c.Menu == nil {
		c.Menu = def.Menu
	}
	if c.Routes == nil {
		c.Routes = def.Routes
	}
}

// ConfigLoader loads configuration from various formats. Fields missing
// from the document take their DefaultConfig values.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, Wrap(CodeInvalidConfig, "decode yaml", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, Wrap(CodeInvalidConfig, "decode json", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile picks the decoder from the file extension.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	}
	return nil, Wrap(CodeInvalidConfig, fmt.Sprintf("unsupported config format %q", filepath.Ext(path)), nil)
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
