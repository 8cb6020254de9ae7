package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the brief generation system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Index     IndexConfig     `mapstructure:"index"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxRunTime     time.Duration `mapstructure:"max_run_time"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string   `mapstructure:"name"`
	APIName         string   `mapstructure:"api_name"`
	MaxTokens       int      `mapstructure:"max_tokens"`
	Temperature     float64  `mapstructure:"temperature"`
	CostPer1K       float64  `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64  `mapstructure:"cost_per_1k_output"`
	Capabilities    []string `mapstructure:"capabilities"` // planning, summarization, synthesis, etc.
}

// LLMRoutingConfig maps pipeline stages to configured models. Primary
// tier stages (planning, synthesis) should point at the stronger model,
// secondary tier stages (recall, summarization) at the faster one.
type LLMRoutingConfig struct {
	Planning      string `mapstructure:"planning"`
	Recall        string `mapstructure:"recall"`
	Summarization string `mapstructure:"summarization"`
	Synthesis     string `mapstructure:"synthesis"`
	Fallback      string `mapstructure:"fallback"`
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // brave or serper
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// FetchConfig controls the full-page fetch upgrade for thin search hits
type FetchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// PipelineConfig contains the research pipeline tunables
type PipelineConfig struct {
	// ExpectedSources maps research depth to the fallback plan's
	// expected source count. Values must stay inside [1,15].
	ExpectedSources map[string]int `mapstructure:"expected_sources"`

	MaxConcurrentSummaries int           `mapstructure:"max_concurrent_summaries"`
	MinSourceWords         int           `mapstructure:"min_source_words"`
	QueryPacingDelay       time.Duration `mapstructure:"query_pacing_delay"`
	MaxSourceChars         int           `mapstructure:"max_source_chars"`

	// SummaryFloor is the schema-level minimum executive summary length.
	// SummaryTarget is the length the synthesis prompt asks for; it only
	// shapes instructions, never validation.
	SummaryFloor  int `mapstructure:"summary_floor"`
	SummaryTarget int `mapstructure:"summary_target"`

	HistoryWindow int `mapstructure:"history_window"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	host, port, ssl := p.Host, p.Port, p.SSLMode
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IndexConfig controls the local full-text index over saved briefs
type IndexConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// SchedulerConfig controls standing-topic refresh runs
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

// Validate checks cross-cutting invariants that would otherwise only
// surface mid-run.
func (c *Config) Validate() error {
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers: at least one provider required")
	}
	for depth, n := range c.Pipeline.ExpectedSources {
		if n < 1 || n > 15 {
			return fmt.Errorf("pipeline.expected_sources[%s]=%d outside [1,15]", depth, n)
		}
	}
	if c.Pipeline.MaxConcurrentSummaries <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_summaries must be > 0")
	}
	if c.Pipeline.SummaryFloor <= 0 {
		return fmt.Errorf("pipeline.summary_floor must be > 0")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("general.max_run_time", "5m")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("search.provider", "brave")
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("fetch.enabled", false)
	viper.SetDefault("fetch.timeout", "20s")
	viper.SetDefault("fetch.max_chars", 10000)
	viper.SetDefault("pipeline.expected_sources", map[string]int{"shallow": 3, "moderate": 5, "deep": 8})
	viper.SetDefault("pipeline.max_concurrent_summaries", 4)
	viper.SetDefault("pipeline.min_source_words", 20)
	viper.SetDefault("pipeline.query_pacing_delay", "1s")
	viper.SetDefault("pipeline.max_source_chars", 10000)
	viper.SetDefault("pipeline.summary_floor", 50)
	viper.SetDefault("pipeline.summary_target", 200)
	viper.SetDefault("pipeline.history_window", 3)
	viper.SetDefault("index.enabled", false)
	viper.SetDefault("index.path", "briefs.bleve")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.tick_interval", "1h")
	viper.SetDefault("scheduler.lock_ttl", "2m")
}

// LoadConfig loads config from file, applying BRIEFER_* env overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("BRIEFER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional: env + defaults are enough to run.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Postgres settings are validated by the commands that need them;
	// the generate command runs without a database.
	return &cfg, nil
}
