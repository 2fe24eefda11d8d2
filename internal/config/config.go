package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Assist    AssistConfig    `yaml:"assist" mapstructure:"assist"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Seed      SeedConfig      `yaml:"seed" mapstructure:"seed"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ExplainRateLimit  int      `yaml:"explain_rate_limit" mapstructure:"explain_rate_limit"`
	ExplainWindowSecs int      `yaml:"explain_window_secs" mapstructure:"explain_window_secs"`
}

// ReconcileConfig configures consensus and batch runs.
type ReconcileConfig struct {
	Threshold         float64 `yaml:"threshold" mapstructure:"threshold"`
	BatchLimit        int     `yaml:"batch_limit" mapstructure:"batch_limit"`
	SourceTimeoutSecs int     `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	PolicyFile        string  `yaml:"policy_file" mapstructure:"policy_file"`
}

// SourcesConfig locates the directory fixtures.
type SourcesConfig struct {
	FixtureDir string `yaml:"fixture_dir" mapstructure:"fixture_dir"`
	Watch      bool   `yaml:"watch" mapstructure:"watch"`
}

// RegistryConfig configures live NPI registry lookups.
type RegistryConfig struct {
	Live        bool    `yaml:"live" mapstructure:"live"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// RedisConfig enables the registry payload cache when URL is set.
type RedisConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	CacheTTLMins int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// AssistConfig configures reasoning-assisted selection and explanations.
type AssistConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled"`
	Model            string `yaml:"model" mapstructure:"model"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int    `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OCRConfig configures license document text extraction.
type OCRConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Binary            string  `yaml:"binary" mapstructure:"binary"`
	Language          string  `yaml:"language" mapstructure:"language"`
	NeutralConfidence float64 `yaml:"neutral_confidence" mapstructure:"neutral_confidence"`
}

// SeedConfig configures the CSV import.
type SeedConfig struct {
	DocumentsDir string `yaml:"documents_dir" mapstructure:"documents_dir"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "providers.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3020"})
	v.SetDefault("server.explain_rate_limit", 5)
	v.SetDefault("server.explain_window_secs", 60)
	v.SetDefault("reconcile.threshold", 0.75)
	v.SetDefault("reconcile.batch_limit", 200)
	v.SetDefault("reconcile.source_timeout_secs", 5)
	v.SetDefault("sources.fixture_dir", "data")
	v.SetDefault("sources.watch", false)
	v.SetDefault("registry.live", false)
	v.SetDefault("registry.base_url", "https://npiregistry.cms.hhs.gov/api")
	v.SetDefault("registry.timeout_secs", 5)
	v.SetDefault("registry.rate_per_sec", 10)
	v.SetDefault("registry.max_retries", 1)
	v.SetDefault("redis.cache_ttl_mins", 60)
	v.SetDefault("assist.enabled", false)
	v.SetDefault("assist.model", "claude-haiku-4-5-20251001")
	v.SetDefault("assist.max_tokens", 256)
	v.SetDefault("assist.timeout_secs", 10)
	v.SetDefault("assist.failure_threshold", 5)
	v.SetDefault("assist.cooldown_secs", 30)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.binary", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.neutral_confidence", 0.7)
	v.SetDefault("seed.documents_dir", "documents")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Every problem is
// reported in one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "batch", "serve", "import", "export", "migrate", "review":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, `store.driver must be "sqlite" or "postgres"`)
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if mode == "migrate" && c.Store.Driver != "postgres" {
		problems = append(problems, "migrate requires store.driver postgres")
	}

	if c.Reconcile.Threshold < 0 || c.Reconcile.Threshold > 1 {
		problems = append(problems, "reconcile.threshold must be between 0 and 1")
	}
	if c.Reconcile.BatchLimit < 1 {
		problems = append(problems, "reconcile.batch_limit must be > 0")
	}
	if c.OCR.NeutralConfidence < 0 || c.OCR.NeutralConfidence > 1 {
		problems = append(problems, "ocr.neutral_confidence must be between 0 and 1")
	}
	switch c.OCR.Provider {
	case "tesseract", "none", "":
	default:
		problems = append(problems, `ocr.provider must be "tesseract" or "none"`)
	}

	if c.Registry.Live && c.Registry.BaseURL == "" {
		problems = append(problems, "registry.base_url is required when registry.live is set")
	}
	if c.Registry.MaxRetries < 0 {
		problems = append(problems, "registry.max_retries must be >= 0")
	}
	if c.Assist.Enabled && c.Anthropic.Key == "" {
		problems = append(problems, "anthropic.key is required when assist.enabled is set")
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.ExplainRateLimit < 1 || c.Server.ExplainWindowSecs < 1 {
			problems = append(problems, "server.explain_rate_limit and server.explain_window_secs must be > 0")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
