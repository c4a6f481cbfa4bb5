// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Gemini      GeminiConfig
	// UsageLimit caps collaborator invocations per inbound turn so a
	// conversation cannot loop between agents indefinitely.
	UsageLimit int
	// TranscriptMaxTurns bounds how many transcript messages are kept per
	// session as conversational context.
	TranscriptMaxTurns int
}

// GeminiConfig controls the Gemini language model client.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		DBPath:      getEnv("DB_PATH", "./data/glucose_buddy.db"),
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		UsageLimit:         getEnvInt("USAGE_LIMIT", 15),
		TranscriptMaxTurns: getEnvInt("TRANSCRIPT_MAX_TURNS", 40),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY cannot be empty")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.UsageLimit <= 0 {
		return fmt.Errorf("USAGE_LIMIT must be > 0")
	}
	if c.TranscriptMaxTurns <= 0 {
		return fmt.Errorf("TRANSCRIPT_MAX_TURNS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
