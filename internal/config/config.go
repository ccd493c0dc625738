// Package config loads the deepsearch configuration bundle: defaults,
// DEEPSEARCH_* environment overrides, and API keys merged in from the
// credential store at run submission time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Research ResearchConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir   string
	OutputDir string
}

// ResearchConfig is the option bundle handed to the research run driver.
type ResearchConfig struct {
	DeepSeekAPIKey     string
	OpenAIAPIKey       string
	TavilyAPIKey       string
	DefaultLLMProvider string // "deepseek" or "openai"
	DeepSeekModel      string
	OpenAIModel        string
	MaxReflections     int
	MaxSearchResults   int
	MaxContentLength   int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir:   defaultDataDir(),
			OutputDir: "deepsearch_reports",
		},
		Research: ResearchConfig{
			DefaultLLMProvider: "deepseek",
			DeepSeekModel:      "deepseek-chat",
			OpenAIModel:        "gpt-4o-mini",
			MaxReflections:     2,
			MaxSearchResults:   3,
			MaxContentLength:   20000,
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "deepsearch-data"
		}
	}
	return filepath.Join(dir, "deepsearch")
}

// FontsDir is where the provisioned CJK font lives.
func (c Config) FontsDir() string {
	return filepath.Join(c.Storage.DataDir, "fonts")
}

// Load reads the configuration: defaults overridden by DEEPSEARCH_*
// environment variables. Credentials may stay empty here; they are merged
// from the store when a run is submitted.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strs := []struct {
		env  string
		dest *string
	}{
		{"DEEPSEARCH_DEEPSEEK_API_KEY", &cfg.Research.DeepSeekAPIKey},
		{"DEEPSEARCH_OPENAI_API_KEY", &cfg.Research.OpenAIAPIKey},
		{"DEEPSEARCH_TAVILY_API_KEY", &cfg.Research.TavilyAPIKey},
		{"DEEPSEARCH_LLM_PROVIDER", &cfg.Research.DefaultLLMProvider},
		{"DEEPSEARCH_DEEPSEEK_MODEL", &cfg.Research.DeepSeekModel},
		{"DEEPSEARCH_OPENAI_MODEL", &cfg.Research.OpenAIModel},
		{"DEEPSEARCH_DATA_DIR", &cfg.Storage.DataDir},
		{"DEEPSEARCH_OUTPUT_DIR", &cfg.Storage.OutputDir},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dest = v
		}
	}

	ints := []struct {
		env  string
		dest *int
	}{
		{"DEEPSEARCH_PORT", &cfg.Server.Port},
		{"DEEPSEARCH_MAX_REFLECTIONS", &cfg.Research.MaxReflections},
		{"DEEPSEARCH_MAX_SEARCH_RESULTS", &cfg.Research.MaxSearchResults},
		{"DEEPSEARCH_MAX_CONTENT_LENGTH", &cfg.Research.MaxContentLength},
	}
	for _, s := range ints {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if i, err := strconv.Atoi(raw); err == nil {
			*s.dest = i
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
		}
	}
}

// MergeStoredKeys fills empty credentials from the store's api_keys table.
// Environment-provided keys take precedence; stored keys are the fallback,
// read at submission time so the freshest saved value wins.
func (c *ResearchConfig) MergeStoredKeys(keys map[string]string) {
	if c.DeepSeekAPIKey == "" {
		c.DeepSeekAPIKey = keys["deepseek"]
	}
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = keys["openai"]
	}
	if c.TavilyAPIKey == "" {
		c.TavilyAPIKey = keys["tavily"]
	}
}

// Validate checks that a run can actually be started with this bundle.
func (c ResearchConfig) Validate() error {
	switch c.DefaultLLMProvider {
	case "deepseek":
		if c.DeepSeekAPIKey == "" {
			return fmt.Errorf("missing DeepSeek API key: set DEEPSEARCH_DEEPSEEK_API_KEY or store it with `deepsearch keys set deepseek`")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("missing OpenAI API key: set DEEPSEARCH_OPENAI_API_KEY or store it with `deepsearch keys set openai`")
		}
	default:
		return fmt.Errorf("unknown LLM provider %q (want deepseek or openai)", c.DefaultLLMProvider)
	}
	if c.TavilyAPIKey == "" {
		return fmt.Errorf("missing Tavily API key: set DEEPSEARCH_TAVILY_API_KEY or store it with `deepsearch keys set tavily`")
	}
	return nil
}
