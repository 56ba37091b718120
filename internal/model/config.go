package model

import "time"

// Config holds all omecscore settings
type Config struct {
	Rubric       RubricConfig          `yaml:"rubric" mapstructure:"rubric"`
	Upstream     UpstreamConfig        `yaml:"upstream" mapstructure:"upstream"`
	Cache        CacheConfig           `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig     `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig       `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Tiers        map[string][]TierStep `yaml:"tiers" mapstructure:"tiers"`
	Server       ServerConfig          `yaml:"server" mapstructure:"server"`
	Store        StoreConfig           `yaml:"store" mapstructure:"store"`
	Log          LogConfig             `yaml:"log" mapstructure:"log"`
	LLM          LLMConfig             `yaml:"llm" mapstructure:"llm"`
	Output       OutputConfig          `yaml:"output" mapstructure:"output"`
}

// RubricConfig locates the scoring rubric
type RubricConfig struct {
	Source         string        `yaml:"source" mapstructure:"source"`                   // CSV file path or http(s) URL
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`                 // Applies to URL sources
	ReloadInterval time.Duration `yaml:"reload_interval" mapstructure:"reload_interval"` // 0 disables periodic reload (serve only)
}

// UpstreamConfig points at the survey backend
type UpstreamConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	AssetUID     string        `yaml:"asset_uid" mapstructure:"asset_uid"`
	Token        string        `yaml:"token" mapstructure:"token"` // Passed through as "Authorization: Token ..."
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"` // Empty falls back to HTTP_PROXY env
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls caching of upstream submission payloads
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig controls batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitConfig limits requests per upstream host
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// TierStep awards Score when a numeric answer is at least Min
type TierStep struct {
	Min   float64 `yaml:"min" mapstructure:"min"`
	Score float64 `yaml:"score" mapstructure:"score"`
}

// ServerConfig configures the HTTP scoring API
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// StoreConfig configures result history persistence
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, or empty to disable
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"` // Rotating JSON log file, empty for console only
}

// LLMConfig configures the optional narrative summary
type LLMConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // openai, ollama, or empty
	Model     string        `yaml:"model" mapstructure:"model"`
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Rubric: RubricConfig{
			Source:  "rubric.csv",
			Timeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:      "https://kf.kobotoolbox.org",
			Timeout:      30 * time.Second,
			UserAgent:    "omecscore/0.1 (+https://github.com/ppiankov/omecscore)",
			MaxBodyBytes: 5_000_000,
			MaxRetries:   3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".omecscore-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Tiers: DefaultTiers(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			RequestTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 800,
			Timeout:   30 * time.Second,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}

// DefaultTiers returns the built-in threshold tables for numeric questions
func DefaultTiers() map[string][]TierStep {
	return map[string][]TierStep{
		// Hectares under conservation management
		"area_size_ha": {
			{Min: 10000, Score: 3},
			{Min: 1000, Score: 2},
			{Min: 100, Score: 1},
		},
		// Rangers per hectare
		"rangers_per_ha": {
			{Min: 0.01, Score: 3},
			{Min: 0.002, Score: 2},
			{Min: 0.0005, Score: 1},
		},
	}
}
