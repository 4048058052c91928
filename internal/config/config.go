package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Metabase    MetabaseConfig    `yaml:"metabase"`
	LLM         LLMConfig         `yaml:"llm"`
	Redis       RedisConfig       `yaml:"redis"`
	Suppression SuppressionConfig `yaml:"suppression"`
	Export      ExportConfig      `yaml:"export"`
	Logging     LoggingConfig     `yaml:"logging"`
	CORS        CORSConfig        `yaml:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// MetabaseConfig holds the BI tool API credentials. The session token it
// issues is cached for SessionTTLHours (Metabase defaults to 14 days; we
// refresh a day early).
type MetabaseConfig struct {
	BaseURL         string `yaml:"base_url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MetabaseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionTTL returns how long an issued session token is trusted.
func (c MetabaseConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// IsConfigured reports whether URL and credentials are all present.
func (c MetabaseConfig) IsConfigured() bool {
	return c.BaseURL != "" && c.Username != "" && c.Password != ""
}

// LLMConfig selects the segment-suggestion provider.
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // "openai" or "bedrock"
	OpenAI         OpenAIConfig  `yaml:"openai"`
	Bedrock        BedrockConfig `yaml:"bedrock"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// BedrockConfig holds AWS Bedrock configuration. Credentials come from the
// default AWS chain (env, profile, or task role).
type BedrockConfig struct {
	ModelID string `yaml:"model_id"`
	Region  string `yaml:"region"`
}

// RedisConfig holds the optional metadata cache settings
type RedisConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Addr               string `yaml:"addr"`
	Password           string `yaml:"password"`
	DB                 int    `yaml:"db"`
	MetadataTTLSeconds int    `yaml:"metadata_ttl_seconds"`
}

// MetadataTTL returns how long table metadata stays cached.
func (c RedisConfig) MetadataTTL() time.Duration {
	return time.Duration(c.MetadataTTLSeconds) * time.Second
}

// SuppressionConfig holds campaign-history defaults
type SuppressionConfig struct {
	HistoryTableID int `yaml:"history_table_id"`
	LookbackDays   int `yaml:"lookback_days"`
	LogBatchSize   int `yaml:"log_batch_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout bounds the suppression-set lookup.
func (c SuppressionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExportConfig holds list export limits
type ExportConfig struct {
	PreviewLimit    int `yaml:"preview_limit"`
	MaxRows         int `yaml:"max_rows"`
	FallbackColumns int `yaml:"fallback_columns"`
	SampleValues    int `yaml:"sample_values"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true).
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// CORSConfig lists the dashboard origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with only defaults applied. Used when no
// config file exists and everything comes from the environment.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Metabase.SessionTTLHours == 0 {
		cfg.Metabase.SessionTTLHours = 13 * 24
	}
	if cfg.Metabase.TimeoutSeconds == 0 {
		cfg.Metabase.TimeoutSeconds = 60
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.OpenAI.Model == "" {
		cfg.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.LLM.OpenAI.BaseURL == "" {
		cfg.LLM.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.LLM.Bedrock.ModelID == "" {
		cfg.LLM.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.LLM.Bedrock.Region == "" {
		cfg.LLM.Bedrock.Region = "us-east-1"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.MetadataTTLSeconds == 0 {
		cfg.Redis.MetadataTTLSeconds = 300
	}
	if cfg.Suppression.LookbackDays == 0 {
		cfg.Suppression.LookbackDays = 30
	}
	if cfg.Suppression.LogBatchSize == 0 {
		cfg.Suppression.LogBatchSize = 500
	}
	if cfg.Suppression.TimeoutSeconds == 0 {
		cfg.Suppression.TimeoutSeconds = 30
	}
	if cfg.Export.PreviewLimit == 0 {
		cfg.Export.PreviewLimit = 100
	}
	if cfg.Export.MaxRows == 0 {
		cfg.Export.MaxRows = 1048575
	}
	if cfg.Export.FallbackColumns == 0 {
		cfg.Export.FallbackColumns = 10
	}
	if cfg.Export.SampleValues == 0 {
		cfg.Export.SampleValues = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars when deployed. A missing
// config file is not an error: defaults plus environment are used.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	if v := os.Getenv("METABASE_URL"); v != "" {
		cfg.Metabase.BaseURL = v
	}
	if v := os.Getenv("METABASE_USERNAME"); v != "" {
		cfg.Metabase.Username = v
	}
	if v := os.Getenv("METABASE_PASSWORD"); v != "" {
		cfg.Metabase.Password = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.OpenAI.Model = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.LLM.Bedrock.ModelID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.LLM.Bedrock.Region = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := envInt("HISTORY_TABLE_ID"); v > 0 {
		cfg.Suppression.HistoryTableID = v
	}
	if v := envInt("PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}
