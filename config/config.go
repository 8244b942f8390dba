// Package config loads the formchat configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default model per provider, used when the configuration names none.
const (
	DefaultOpenAIModel = "gpt-4o"
	DefaultGeminiModel = "gemini-2.5-flash"
)

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	Provider    string  `json:"provider"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	VisionModel string  `json:"vision_model"`
	Language    string  `json:"language"`
	Listen      string  `json:"listen"`
	Store       string  `json:"store"`
	Database    string  `json:"database"`
	LogLevel    string  `json:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Provider:    ProviderOpenAI,
		MaxTokens:   500,
		Temperature: 0.7,
		Language:    "English",
		Listen:      ":8080",
		Store:       StoreSQLite,
		Database:    "formchat.db",
		LogLevel:    "info",
	}
}

// Load reads path on top of Default and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	conf := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := sonic.Unmarshal(file, conf); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	conf.applyEnv()
	conf.applyModelDefault()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyEnv() {
	c.APIKey = getEnv("FORMCHAT_API_KEY", c.APIKey)
	c.BaseURL = getEnv("FORMCHAT_BASE_URL", c.BaseURL)
	c.Model = getEnv("FORMCHAT_MODEL", c.Model)
	c.Database = getEnv("FORMCHAT_DATABASE", c.Database)
	c.Listen = getEnv("FORMCHAT_LISTEN", c.Listen)
	c.Store = getEnv("FORMCHAT_STORE", c.Store)
}

// applyModelDefault fills an empty model with the provider's default.
func (c *Config) applyModelDefault() {
	if c.Model != "" {
		return
	}
	switch c.Provider {
	case ProviderOpenAI:
		c.Model = DefaultOpenAIModel
	case ProviderGemini:
		c.Model = DefaultGeminiModel
	}
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("no model configured for provider %q", c.Provider)
	}
	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be within [0, 1], got %v", c.Temperature)
	}
	return nil
}

// Vision returns the model used for transcripts that carry images.
func (c *Config) Vision() string {
	if c.VisionModel != "" {
		return c.VisionModel
	}
	return c.Model
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
