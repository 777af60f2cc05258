package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the saucebot configuration.
type Config struct {
	OneBot      OneBotConfig      `yaml:"onebot"`
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Searchers   SearchersConfig   `yaml:"searchers"`
	Reply       ReplyConfig       `yaml:"reply"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// OneBotConfig holds the chat bridge connection settings.
type OneBotConfig struct {
	WSURL             string `yaml:"ws_url"`
	AccessToken       string `yaml:"access_token"`
	OutboundQueueSize int    `yaml:"outbound_queue_size"`
	ReconnectDelaySec int    `yaml:"reconnect_delay_sec"`
	WriteTimeoutSec   int    `yaml:"write_timeout_sec"`
}

// HTTPConfig holds ops HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds correlation store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // sqlite, redis, valkey (default: sqlite)
	Path             string   `yaml:"path"`   // sqlite only
	Addrs            []string `yaml:"addrs"`  // redis/valkey only
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CorrelationConfig holds correlation entry settings.
type CorrelationConfig struct {
	TTLSec int `yaml:"ttl_sec"` // 0 = never expire
}

// SearchersConfig holds the reverse image search backends, queried in
// ascii2d, saucenao, iqdb order.
type SearchersConfig struct {
	UserAgent   string         `yaml:"user_agent"`
	CacheTTLSec int            `yaml:"cache_ttl_sec"` // 0 = answers are not cached
	Ascii2d     SearcherConfig `yaml:"ascii2d"`
	SauceNAO    SearcherConfig `yaml:"saucenao"`
	IQDB        SearcherConfig `yaml:"iqdb"`
}

// SearcherConfig holds one backend's settings.
type SearcherConfig struct {
	Disabled      bool     `yaml:"disabled"`
	BaseURL       string   `yaml:"base_url"`
	TimeoutSec    int      `yaml:"timeout_sec"`
	UserAgent     string   `yaml:"user_agent"`     // overrides searchers.user_agent
	APIKey        string   `yaml:"api_key"`        // saucenao only
	MinSimilarity *float64 `yaml:"min_similarity"` // percent; unset = backend default, 0 accepts any match
	RatePerSec    float64  `yaml:"rate_per_sec"`   // 0 = unlimited
	Burst         int      `yaml:"burst"`
}

// ReplyConfig holds trigger phrases and reply texts.
type ReplyConfig struct {
	TriggerPhrases []string `yaml:"trigger_phrases"`
	NotFoundText   string   `yaml:"not_found_text"`
	HeaderText     string   `yaml:"header_text"`
	MirrorHost     string   `yaml:"mirror_host"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.OneBot.OutboundQueueSize <= 0 {
		c.OneBot.OutboundQueueSize = 64
	}
	if c.OneBot.ReconnectDelaySec <= 0 {
		c.OneBot.ReconnectDelaySec = 5
	}
	if c.OneBot.WriteTimeoutSec <= 0 {
		c.OneBot.WriteTimeoutSec = 10
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 9090
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "saucebot.db"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	applySearcherDefaults(&c.Searchers.Ascii2d, "https://ascii2d.net", 15, 0)
	applySearcherDefaults(&c.Searchers.SauceNAO, "https://saucenao.com", 15, 80)
	applySearcherDefaults(&c.Searchers.IQDB, "https://iqdb.org", 20, 0)
	if len(c.Reply.TriggerPhrases) == 0 {
		c.Reply.TriggerPhrases = []string{"查出处", "ccc", "find source"}
	}
	if c.Reply.NotFoundText == "" {
		c.Reply.NotFoundText = "并没有找到出处"
	}
	if c.Reply.HeaderText == "" {
		c.Reply.HeaderText = "找到了 %d 个出处"
	}
	if c.Reply.MirrorHost == "" {
		c.Reply.MirrorHost = "pixiv.re"
	}
}

func applySearcherDefaults(s *SearcherConfig, baseURL string, timeoutSec int, minSimilarity float64) {
	if s.BaseURL == "" {
		s.BaseURL = baseURL
	}
	if s.TimeoutSec <= 0 {
		s.TimeoutSec = timeoutSec
	}
	if s.MinSimilarity == nil {
		s.MinSimilarity = &minSimilarity
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.OneBot.WSURL == "" {
		return fmt.Errorf("onebot.ws_url is required")
	}
	if !strings.HasPrefix(c.OneBot.WSURL, "ws://") && !strings.HasPrefix(c.OneBot.WSURL, "wss://") {
		return fmt.Errorf("onebot.ws_url must start with ws:// or wss://, got %q", c.OneBot.WSURL)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "redis", "valkey":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be \"sqlite\", \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	if c.Correlation.TTLSec < 0 {
		return fmt.Errorf("correlation.ttl_sec must not be negative, got %d", c.Correlation.TTLSec)
	}
	if c.Searchers.CacheTTLSec < 0 {
		return fmt.Errorf("searchers.cache_ttl_sec must not be negative, got %d", c.Searchers.CacheTTLSec)
	}
	for name, s := range map[string]SearcherConfig{
		"ascii2d": c.Searchers.Ascii2d, "saucenao": c.Searchers.SauceNAO, "iqdb": c.Searchers.IQDB,
	} {
		if v := s.Similarity(); v < 0 || v > 100 {
			return fmt.Errorf("searchers.%s.min_similarity must be within 0..100, got %v", name, v)
		}
		if s.RatePerSec < 0 {
			return fmt.Errorf("searchers.%s.rate_per_sec must not be negative, got %v", name, s.RatePerSec)
		}
	}
	if c.Searchers.Ascii2d.Disabled && c.Searchers.SauceNAO.Disabled && c.Searchers.IQDB.Disabled {
		return fmt.Errorf("at least one searcher must be enabled")
	}
	return nil
}

// Similarity returns the configured threshold, 0 when unset.
func (s SearcherConfig) Similarity() float64 {
	if s.MinSimilarity == nil {
		return 0
	}
	return *s.MinSimilarity
}

// UserAgentFor returns the backend's user agent, falling back to the shared one.
func (c *SearchersConfig) UserAgentFor(s SearcherConfig) string {
	if s.UserAgent != "" {
		return s.UserAgent
	}
	return c.UserAgent
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
