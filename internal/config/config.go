// Package config loads the server configuration from the environment.
// Every setting is optional: missing Jira or Gemini credentials disable the
// corresponding subsystem instead of failing startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the environment leaves a setting blank.
const (
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultGeminiTimeout = 30 * time.Second
)

// Config is the full server configuration.
type Config struct {
	JiraBaseURL  string
	JiraEmail    string
	JiraAPIToken string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	DBPath string
}

// Load reads the configuration from the environment.
func Load() Config {
	cfg := Config{
		JiraBaseURL:   strings.TrimSpace(os.Getenv("JIRA_BASE_URL")),
		JiraEmail:     strings.TrimSpace(os.Getenv("JIRA_EMAIL")),
		JiraAPIToken:  strings.TrimSpace(os.Getenv("JIRA_API_TOKEN")),
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:   strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		GeminiTimeout: DefaultGeminiTimeout,
		DBPath:        strings.TrimSpace(os.Getenv("STORYFORGE_DB")),
	}

	if cfg.GeminiModel == "" {
		cfg.GeminiModel = DefaultGeminiModel
	}
	if secs, err := strconv.Atoi(os.Getenv("GEMINI_TIMEOUT_SECONDS")); err == nil && secs > 0 {
		cfg.GeminiTimeout = time.Duration(secs) * time.Second
	}
	return cfg
}

// JiraConfigured reports whether all three Jira settings are present.
func (c Config) JiraConfigured() bool {
	return c.JiraBaseURL != "" && c.JiraEmail != "" && c.JiraAPIToken != ""
}

// GeminiConfigured reports whether an API key is present.
func (c Config) GeminiConfigured() bool {
	return c.GeminiAPIKey != ""
}

// Mask hides a credential for status output, keeping just enough to tell
// which key is loaded.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
