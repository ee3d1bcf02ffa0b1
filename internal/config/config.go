// Package config loads the service configuration: defaults first, then an
// optional TOML file, then environment variables. Environment keys are the
// documented flat names (APP_ID, WEBHOOK_SECRET, ...) mapped onto config
// paths through an explicit table.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration.
type Config struct {
	App struct {
		ID             int64  `koanf:"id"`
		PrivateKey     string `koanf:"private_key"`
		PrivateKeyPath string `koanf:"private_key_path"`
		WebhookSecret  string `koanf:"webhook_secret"`
	} `koanf:"app"`

	Server struct {
		Port int    `koanf:"port"`
		Host string `koanf:"host"`
	} `koanf:"server"`

	Queue struct {
		Backend     string `koanf:"backend"` // memory or broker
		BrokerURL   string `koanf:"broker_url"`
		Concurrency int    `koanf:"concurrency"`
	} `koanf:"queue"`

	LLM struct {
		Provider          string  `koanf:"provider"` // openai, anthropic, local
		RequestsPerSecond float64 `koanf:"requests_per_second"`

		OpenAI struct {
			APIKey    string `koanf:"api_key"`
			BaseURL   string `koanf:"base_url"`
			Model     string `koanf:"model"`
			MaxTokens int    `koanf:"max_tokens"`
		} `koanf:"openai"`

		Anthropic struct {
			APIKey  string `koanf:"api_key"`
			BaseURL string `koanf:"base_url"`
			Model   string `koanf:"model"`
		} `koanf:"anthropic"`

		Local struct {
			BaseURL string `koanf:"base_url"`
			Model   string `koanf:"model"`
		} `koanf:"local"`
	} `koanf:"llm"`

	Review struct {
		MaxInlineComments   int     `koanf:"max_inline_comments"`
		RiskThreshold       int     `koanf:"risk_threshold"`
		ConfidenceThreshold float64 `koanf:"confidence_threshold"`
		MaxFileLines        int     `koanf:"max_file_lines"`
		MaxTokensPerChunk   int     `koanf:"max_tokens_per_chunk"`
		MaxFilesPerChunk    int     `koanf:"max_files_per_chunk"`
		EnableCheckRuns     bool    `koanf:"enable_check_runs"`
	} `koanf:"review"`

	Tools struct {
		ESLint         bool   `koanf:"eslint"`
		Semgrep        bool   `koanf:"semgrep"`
		Ruff           bool   `koanf:"ruff"`
		Bandit         bool   `koanf:"bandit"`
		Gosec          bool   `koanf:"gosec"`
		Staticcheck    bool   `koanf:"staticcheck"`
		Secrets        bool   `koanf:"secrets"`
		SemgrepRules   string `koanf:"semgrep_rules"`
		SemgrepTimeout int    `koanf:"semgrep_timeout"`
	} `koanf:"tools"`

	OSV struct {
		Enabled bool   `koanf:"enabled"`
		APIURL  string `koanf:"api_url"`
	} `koanf:"osv"`

	Forge struct {
		APIURL string `koanf:"api_url"`
	} `koanf:"forge"`

	Log struct {
		Level string `koanf:"level"`
		JSON  bool   `koanf:"json"`
		File  string `koanf:"file"`
	} `koanf:"log"`
}

// envKeys maps documented environment variable names onto config paths.
// Unlisted variables are ignored.
var envKeys = map[string]string{
	"APP_ID":                  "app.id",
	"PRIVATE_KEY":             "app.private_key",
	"PRIVATE_KEY_PATH":        "app.private_key_path",
	"WEBHOOK_SECRET":          "app.webhook_secret",
	"PORT":                    "server.port",
	"HOST":                    "server.host",
	"QUEUE_BACKEND":           "queue.backend",
	"BROKER_URL":              "queue.broker_url",
	"WORKER_CONCURRENCY":      "queue.concurrency",
	"LLM_PROVIDER":            "llm.provider",
	"LLM_REQUESTS_PER_SECOND": "llm.requests_per_second",
	"OPENAI_API_KEY":          "llm.openai.api_key",
	"OPENAI_BASE_URL":         "llm.openai.base_url",
	"OPENAI_MODEL":            "llm.openai.model",
	"OPENAI_MAX_TOKENS":       "llm.openai.max_tokens",
	"ANTHROPIC_API_KEY":       "llm.anthropic.api_key",
	"ANTHROPIC_BASE_URL":      "llm.anthropic.base_url",
	"ANTHROPIC_MODEL":         "llm.anthropic.model",
	"LOCAL_BASE_URL":          "llm.local.base_url",
	"LOCAL_MODEL":             "llm.local.model",
	"MAX_INLINE_COMMENTS":     "review.max_inline_comments",
	"RISK_THRESHOLD":          "review.risk_threshold",
	"CONFIDENCE_THRESHOLD":    "review.confidence_threshold",
	"MAX_FILE_LINES":          "review.max_file_lines",
	"MAX_TOKENS_PER_CHUNK":    "review.max_tokens_per_chunk",
	"MAX_FILES_PER_CHUNK":     "review.max_files_per_chunk",
	"ENABLE_CHECK_RUNS":       "review.enable_check_runs",
	"ENABLE_ESLINT":           "tools.eslint",
	"ENABLE_SEMGREP":          "tools.semgrep",
	"ENABLE_RUFF":             "tools.ruff",
	"ENABLE_BANDIT":           "tools.bandit",
	"ENABLE_GOSEC":            "tools.gosec",
	"ENABLE_STATICCHECK":      "tools.staticcheck",
	"ENABLE_SECRETS":          "tools.secrets",
	"SEMGREP_RULES":           "tools.semgrep_rules",
	"SEMGREP_TIMEOUT":         "tools.semgrep_timeout",
	"ENABLE_OSV_SCAN":         "osv.enabled",
	"OSV_API_URL":             "osv.api_url",
	"GITHUB_API_URL":          "forge.api_url",
	"LOG_LEVEL":               "log.level",
	"LOG_JSON":                "log.json",
	"LOG_FILE":                "log.file",
}

// defaults are the documented default values for every option.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":                 3000,
		"server.host":                 "0.0.0.0",
		"queue.backend":               "memory",
		"queue.concurrency":           3,
		"llm.provider":                "openai",
		"llm.requests_per_second":     1.0,
		"llm.openai.model":            "gpt-4o-mini",
		"llm.openai.max_tokens":       4096,
		"llm.anthropic.model":         "claude-sonnet-4-20250514",
		"llm.local.base_url":          "http://localhost:11434/v1",
		"llm.local.model":             "qwen2.5-coder",
		"review.max_inline_comments":  10,
		"review.risk_threshold":       85,
		"review.confidence_threshold": 0.5,
		"review.max_file_lines":       1500,
		"review.max_tokens_per_chunk": 12000,
		"review.max_files_per_chunk":  10,
		"review.enable_check_runs":    true,
		"tools.eslint":                true,
		"tools.semgrep":               true,
		"tools.ruff":                  true,
		"tools.bandit":                true,
		"tools.gosec":                 true,
		"tools.staticcheck":           true,
		"tools.secrets":               true,
		"tools.semgrep_rules":         "auto",
		"tools.semgrep_timeout":       300,
		"osv.enabled":                 true,
		"osv.api_url":                 "https://api.osv.dev",
		"forge.api_url":               "https://api.github.com",
		"log.level":                   "info",
		"log.json":                    true,
	}
}

// Load builds the configuration from defaults, an optional TOML file, and
// the environment. A .env file in the working directory is honored for
// development setups.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	err := k.Load(env.Provider("", ".", func(s string) string {
		if path, ok := envKeys[strings.ToUpper(s)]; ok {
			return path
		}
		return "" // ignore everything not in the table
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the startup-fatal configuration requirements.
func (c *Config) Validate() error {
	if c.App.ID == 0 {
		return fmt.Errorf("APP_ID is required")
	}
	if c.App.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if c.App.PrivateKey == "" && c.App.PrivateKeyPath == "" {
		return fmt.Errorf("PRIVATE_KEY or PRIVATE_KEY_PATH is required")
	}
	switch c.Queue.Backend {
	case "memory":
	case "broker":
		if c.Queue.BrokerURL == "" {
			return fmt.Errorf("BROKER_URL is required for the broker queue backend")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "local":
	default:
		return fmt.Errorf("unknown LLM provider %q", c.LLM.Provider)
	}
	if c.Review.ConfidenceThreshold < 0 || c.Review.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0,1]")
	}
	return nil
}
