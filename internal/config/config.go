// Package config handles configuration loading for TradeSwarm.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"        yaml:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"  yaml:"embedding"`
	Memory     MemoryConfig     `mapstructure:"memory"     yaml:"memory"`
	Debate     DebateConfig     `mapstructure:"debate"     yaml:"debate"`
	Reflection ReflectionConfig `mapstructure:"reflection" yaml:"reflection"`
	Report     ReportConfig     `mapstructure:"report"     yaml:"report"`
	API        APIConfig        `mapstructure:"api"        yaml:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Primary       string  `mapstructure:"primary"         yaml:"primary"` // "openai", "ollama", "anthropic"
	OpenAIKey     string  `mapstructure:"openai_key"      yaml:"openai_key"`
	OpenAIBaseURL string  `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	OllamaURL     string  `mapstructure:"ollama_url"      yaml:"ollama_url"`
	AnthropicKey  string  `mapstructure:"anthropic_key"   yaml:"anthropic_key"`
	DeepModel     string  `mapstructure:"deep_model"      yaml:"deep_model"`  // judges, summarizers
	QuickModel    string  `mapstructure:"quick_model"     yaml:"quick_model"` // analyst turns, reflection
	Temperature   float64 `mapstructure:"temperature"     yaml:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"      yaml:"max_tokens"`
}

// EmbeddingConfig holds embedding provider configuration for the memory store.
type EmbeddingConfig struct {
	Primary     string `mapstructure:"primary"      yaml:"primary"`   // "openai" or "ollama"
	Secondary   string `mapstructure:"secondary"    yaml:"secondary"` // optional fallback
	Model       string `mapstructure:"model"        yaml:"model"`
	OllamaModel string `mapstructure:"ollama_model" yaml:"ollama_model"`
	BaseURL     string `mapstructure:"base_url"     yaml:"base_url"`
}

// MemoryConfig holds situational memory store settings.
type MemoryConfig struct {
	Backend   string `mapstructure:"backend"    yaml:"backend"` // "local" or "chroma"
	Path      string `mapstructure:"path"       yaml:"path"`    // local backend directory
	ChromaURL string `mapstructure:"chroma_url" yaml:"chroma_url"`
}

// DebateConfig holds debate coordinator settings.
type DebateConfig struct {
	Strategy       string  `mapstructure:"strategy"         yaml:"strategy"` // "swarm" or "handoff"
	Mode           string  `mapstructure:"mode"             yaml:"mode"`     // "collaborative", "competitive", "hybrid"
	Rounds         int     `mapstructure:"rounds"           yaml:"rounds"`
	MaxConcurrent  int     `mapstructure:"max_concurrent"   yaml:"max_concurrent"`
	CallTimeoutSec int     `mapstructure:"call_timeout_sec" yaml:"call_timeout_sec"`
	Handoff        Handoff `mapstructure:"handoff"          yaml:"handoff"`
}

// Handoff holds budget settings for the handoff-chain debate strategy.
type Handoff struct {
	MaxHops       int `mapstructure:"max_hops"        yaml:"max_hops"`
	BudgetSec     int `mapstructure:"budget_sec"      yaml:"budget_sec"`
	HopTimeoutSec int `mapstructure:"hop_timeout_sec" yaml:"hop_timeout_sec"`
	Window        int `mapstructure:"window"          yaml:"window"`
	MinUnique     int `mapstructure:"min_unique"      yaml:"min_unique"`
}

// ReflectionConfig holds post-trade reflection settings.
type ReflectionConfig struct {
	MaxMatches int `mapstructure:"max_matches" yaml:"max_matches"` // memories retrieved per reflection
}

// ReportConfig holds report persistence settings.
type ReportConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.tradeswarm/config.yaml (home directory)
//  3. /etc/tradeswarm/config.yaml (system)
//
// Environment variables override config file values.
// Format: TRADESWARM_<SECTION>_<KEY>, e.g., TRADESWARM_LLM_OPENAI_KEY
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tradeswarm"))
	v.AddConfigPath("/etc/tradeswarm")

	// Environment variable settings
	v.SetEnvPrefix("TRADESWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override sensitive values from environment
	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADESWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "openai")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.deep_model", "o4-mini")
	v.SetDefault("llm.quick_model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 4096)

	// Embedding defaults
	v.SetDefault("embedding.primary", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.ollama_model", "nomic-embed-text")

	// Memory defaults
	v.SetDefault("memory.backend", "local")
	v.SetDefault("memory.path", filepath.Join(homeDir(), ".tradeswarm", "memory"))
	v.SetDefault("memory.chroma_url", "http://localhost:8000")

	// Debate defaults
	v.SetDefault("debate.strategy", "swarm")
	v.SetDefault("debate.mode", "hybrid")
	v.SetDefault("debate.rounds", 1)
	v.SetDefault("debate.max_concurrent", 1)
	v.SetDefault("debate.call_timeout_sec", 300)
	v.SetDefault("debate.handoff.max_hops", 20)
	v.SetDefault("debate.handoff.budget_sec", 900)
	v.SetDefault("debate.handoff.hop_timeout_sec", 300)
	v.SetDefault("debate.handoff.window", 8)
	v.SetDefault("debate.handoff.min_unique", 2)

	// Reflection defaults
	v.SetDefault("reflection.max_matches", 2)

	// Report defaults
	v.SetDefault("report.dir", filepath.Join(homeDir(), ".tradeswarm", "reports"))

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("TRADESWARM_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
	if key := os.Getenv("TRADESWARM_LLM_ANTHROPIC_KEY"); key != "" {
		cfg.LLM.AnthropicKey = key
	}
	// OPENAI_API_KEY works too, for parity with other tooling
	if cfg.LLM.OpenAIKey == "" {
		cfg.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
