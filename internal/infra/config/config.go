package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Mail      MailConfig      `yaml:"mail"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Proactive ProactiveConfig `yaml:"proactive"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// AgentConfig holds conversation loop settings.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	SystemPrompt  string        `yaml:"system_prompt"`
	SessionDir    string        `yaml:"session_dir"`
	UserName      string        `yaml:"user_name"`
}

// LLMConfig holds chat model provider settings.
type LLMConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	Model          string               `yaml:"model"`
	Temperature    float64              `yaml:"temperature"`
	MaxTokens      int                  `yaml:"max_tokens"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the LLM provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// EmbeddingConfig holds text embedding provider settings.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"` // 0 = no query cache
}

// RetrievalConfig holds the retrieval store settings.
type RetrievalConfig struct {
	DBPath   string `yaml:"db_path"`
	StyleK   int    `yaml:"style_k"`
	ContentK int    `yaml:"content_k"`
}

// MailConfig holds mailbox backend settings.
type MailConfig struct {
	Backend     string  `yaml:"backend"` // "file" is the only backend today
	DataDir     string  `yaml:"data_dir"`
	TokenCache  string  `yaml:"token_cache"`
	SendPerMin  float64 `yaml:"send_per_min"` // sustained outbound rate
	SendBurst   int     `yaml:"send_burst"`
	UnreadLimit int     `yaml:"unread_limit"`
}

// CalendarConfig holds calendar backend settings.
type CalendarConfig struct {
	Backend    string `yaml:"backend"`
	DataDir    string `yaml:"data_dir"`
	EventLimit int    `yaml:"event_limit"`
}

// IngestConfig holds sent-mail ingestion settings.
type IngestConfig struct {
	MaxEmails int `yaml:"max_emails"`
	MinWords  int `yaml:"min_words"`
	BatchSize int `yaml:"batch_size"`
}

// ProactiveConfig holds the scheduled briefing settings.
type ProactiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Prompt   string `yaml:"prompt"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.doppel.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".doppel")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Agent: AgentConfig{
			MaxIterations: 8,
			Timeout:       120 * time.Second,
			SessionDir:    filepath.Join(dataDir, "sessions"),
			SystemPrompt: "You are a personal assistant managing the user's email and calendar. " +
				"Use the lookup tools to ground what you say, and match the user's own " +
				"writing style when drafting messages. Never send email or create events " +
				"without proposing the action first.",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			Temperature: 0,
			ConnTimeout: 10 * time.Second,
			RespTimeout: 120 * time.Second,
			Pool: PoolConfig{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    30 * time.Second,
			CacheSize:  256,
		},
		Retrieval: RetrievalConfig{
			DBPath:   filepath.Join(dataDir, "retrieval.db"),
			StyleK:   3,
			ContentK: 4,
		},
		Mail: MailConfig{
			Backend:     "file",
			DataDir:     filepath.Join(dataDir, "mail"),
			TokenCache:  filepath.Join(dataDir, "token.json"),
			SendPerMin:  6,
			SendBurst:   2,
			UnreadLimit: 10,
		},
		Calendar: CalendarConfig{
			Backend:    "file",
			DataDir:    filepath.Join(dataDir, "calendar"),
			EventLimit: 20,
		},
		Ingest: IngestConfig{
			MaxEmails: 50,
			MinWords:  10,
			BatchSize: 32,
		},
		Proactive: ProactiveConfig{
			Enabled:  false,
			Schedule: "0 7 * * *",
			Prompt:   "Summarize my unread email and today's calendar.",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps DOPPEL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOPPEL_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DOPPEL_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DOPPEL_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DOPPEL_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("DOPPEL_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("DOPPEL_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("DOPPEL_RETRIEVAL_DB"); v != "" {
		cfg.Retrieval.DBPath = v
	}
	if v := os.Getenv("DOPPEL_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("DOPPEL_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("DOPPEL_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("DOPPEL_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("DOPPEL_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("DOPPEL_USER_NAME"); v != "" {
		cfg.Agent.UserName = v
	}
	if v := os.Getenv("DOPPEL_PROACTIVE_ENABLED"); v == "true" {
		cfg.Proactive.Enabled = true
	}
	if v := os.Getenv("DOPPEL_PROACTIVE_SCHEDULE"); v != "" {
		cfg.Proactive.Schedule = v
	}
}
