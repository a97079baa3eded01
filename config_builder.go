package permgate

// ConfigBuilder provides fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

// NewConfigBuilder starts from DefaultConfig with an empty menu and route
// table. Call WithDefaultConsole to start from the console's own tables.
func NewConfigBuilder() *ConfigBuilder {
	cfg := DefaultConfig()
	cfg.Menu = []MenuItem{}
	cfg.Routes = []Route{}
	return &ConfigBuilder{cfg: cfg}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) WithDefaultConsole() *ConfigBuilder {
	b.cfg.Menu = DefaultMenu()
	b.cfg.Routes = DefaultRoutes()
	return b
}

func (b *ConfigBuilder) Backend(baseURL string, timeoutMs int64) *ConfigBuilder {
	b.cfg.Backend = BackendConfig{BaseURL: baseURL, TimeoutMs: timeoutMs}
	return b
}

func (b *ConfigBuilder) MemorySessions() *ConfigBuilder {
	b.cfg.Session.Driver = SessionDriverMemory
	return b
}

func (b *ConfigBuilder) SQLiteSessions(dsn string) *ConfigBuilder {
	b.cfg.Session.Driver = SessionDriverSQLite
	b.cfg.Session.DSN = dsn
	return b
}

func (b *ConfigBuilder) RedisSessions(addr string, db int) *ConfigBuilder {
	b.cfg.Session.Driver = SessionDriverRedis
	b.cfg.Session.RedisAddr = addr
	b.cfg.Session.RedisDB = db
	return b
}

func (b *ConfigBuilder) StrictFallback(strict bool) *ConfigBuilder {
	b.cfg.Fallback.Strict = strict
	return b
}

func (b *ConfigBuilder) Policy(r Resource, p ResourcePolicy) *ConfigBuilder {
	if b.cfg.Policies == nil {
		b.cfg.Policies = make(map[Resource]ResourcePolicy)
	}
	b.cfg.Policies[r] = p
	return b
}

func (b *ConfigBuilder) AddRoute(r Route) *ConfigBuilder {
	b.cfg.Routes = append(b.cfg.Routes, r)
	return b
}

func (b *ConfigBuilder) AddMenuItem(item MenuItem) *ConfigBuilder {
	b.cfg.Menu = append(b.cfg.Menu, item)
	return b
}

func (b *ConfigBuilder) ServerSettings(fn func(*ServerConfig)) *ConfigBuilder {
	fn(&b.cfg.Server)
	return b
}

// Build validates and returns the configuration.
func (b *ConfigBuilder) Build() (*Config, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	return b.cfg, nil
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}
