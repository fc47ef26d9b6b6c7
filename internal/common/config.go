package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// StateDirName is the per-site state directory created under the output
// directory. It holds the embedded store, the process lock, logs and
// debug reports.
const StateDirName = ".site2rag"

// Config represents the application configuration
type Config struct {
	Debug    bool           `toml:"debug"` // Force debug logging and debug report dumps
	Test     bool           `toml:"test"`  // Test mode: verbose validation logging, no colour output
	Crawl    CrawlConfig    `toml:"crawl"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
	LLM      LLMConfig      `toml:"llm"`
	Ollama   OllamaConfig   `toml:"ollama"`
	Claude   ClaudeConfig   `toml:"claude"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Enrich   EnrichConfig   `toml:"enrich"`
	Schedule ScheduleConfig `toml:"schedule"`
}

// CrawlConfig contains crawl engine configuration
type CrawlConfig struct {
	OutputDir        string        `toml:"output_dir" validate:"required"`
	UserAgent        string        `toml:"user_agent"`
	MaxPages         int           `toml:"max_pages"`          // -1 = unlimited
	MaxDepth         int           `toml:"max_depth"`          // -1 = unlimited
	MaxConcurrency   int           `toml:"max_concurrency"`    // Concurrent fetch workers
	RequestDelay     time.Duration `toml:"request_delay"`      // Minimum spacing between requests
	RequestTimeout   time.Duration `toml:"request_timeout"`    // Per-request timeout
	RobotsTimeout    time.Duration `toml:"robots_timeout"`     // robots.txt probe timeout
	SameDomain       bool          `toml:"same_domain"`        // Confine crawl to the seed's registered domain
	FollowRobotsTxt  bool          `toml:"follow_robots_txt"`  // Respect robots.txt rules
	FlatLayout       bool          `toml:"flat_layout"`        // <path-with-underscores>.md instead of hierarchy
	IncludePatterns  []string      `toml:"include_patterns"`   // Glob patterns; leading ! excludes
	MinAgeHours      float64       `toml:"min_age_hours"`      // Age-filter tier of the change detector (0 = off)
	FastRecheckHours float64       `toml:"fast_recheck_hours"` // Recently-updated pages bypass the age filter
	MaxDocumentSize  int64         `toml:"max_document_size"`  // Binary download cap in bytes
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory (default: <output>/.site2rag/db)
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderOllama uses a local Ollama server
	LLMProviderOllama LLMProvider = "ollama"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider   `toml:"default_provider" validate:"omitempty,oneof=ollama claude gemini"`
	Model           string        `toml:"model"`          // Model override; provider detected from name
	MaxConcurrent   int           `toml:"max_concurrent"` // Global concurrent call cap
	CallTimeout     time.Duration `toml:"call_timeout"`   // Per-call timeout
}

// OllamaConfig contains local Ollama server configuration
type OllamaConfig struct {
	Host  string `toml:"host"`  // e.g. "http://localhost:11434"
	Model string `toml:"model"` // e.g. "llama3.2"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

// EnrichConfig contains context-enrichment configuration
type EnrichConfig struct {
	Enabled       bool          `toml:"enabled"`
	BatchWords    int           `toml:"batch_words"`    // Target words per paragraph batch
	MaxRetries    int           `toml:"max_retries"`    // Retries per batch before keeping originals
	CleanupGap    time.Duration `toml:"cleanup_gap"`    // Gap between cleanup-phase retries
	CostPerMTok   float64       `toml:"cost_per_mtok"`  // Estimated cost per million tokens (USD)
}

// ScheduleConfig enables resident mode with periodic incremental recrawls
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"` // robfig/cron expression, e.g. "0 3 * * *"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in site2rag.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			OutputDir:        "./output",
			UserAgent:        "site2rag-crawler",
			MaxPages:         -1,
			MaxDepth:         -1,
			MaxConcurrency:   5,
			RequestDelay:     500 * time.Millisecond,
			RequestTimeout:   30 * time.Second,
			RobotsTimeout:    5 * time.Second,
			SameDomain:       true,
			FollowRobotsTxt:  true,
			MinAgeHours:      0,
			FastRecheckHours: 24,
			MaxDocumentSize:  50 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "", // Resolved to <output>/.site2rag/db when empty
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderOllama,
			MaxConcurrent:   3,
			CallTimeout:     60 * time.Second,
		},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "llama3.2",
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Temperature: 0.1,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			Temperature: 0.1,
		},
		Enrich: EnrichConfig{
			Enabled:     true,
			BatchWords:  500,
			MaxRetries:  3,
			CleanupGap:  2 * time.Second,
			CostPerMTok: 0,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against struct validation tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if dir := os.Getenv("SITE2RAG_OUTPUT_DIR"); dir != "" {
		config.Crawl.OutputDir = dir
	}
	if ua := os.Getenv("SITE2RAG_USER_AGENT"); ua != "" {
		config.Crawl.UserAgent = ua
	}
	if pages := os.Getenv("SITE2RAG_MAX_PAGES"); pages != "" {
		if p, err := strconv.Atoi(pages); err == nil {
			config.Crawl.MaxPages = p
		}
	}
	if level := os.Getenv("SITE2RAG_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SITE2RAG_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		config.Ollama.Host = host
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
}
