package config

import (
	"os"
	"strconv"
)

// DefaultSystemPrompt is used when AI_SYSTEM_PROMPT is not set.
const DefaultSystemPrompt = "You are a professional customer support assistant. Answer user questions in a friendly, professional tone."

// Config holds all configuration for the chatrelay server.
type Config struct {
	Port      int
	Version   string
	AI        AIConfig
	Chatwoot  ChatwootConfig
	Telemetry TelemetryConfig
}

// AIConfig configures the outbound AI completion call.
type AIConfig struct {
	URL          string
	Token        string
	SystemPrompt string
	// Provider forces a specific adapter; empty means auto-detect from URL.
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxAttempts int
}

// ChatwootConfig configures where replies are posted back to.
type ChatwootConfig struct {
	BaseURL  string
	BotToken string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Configured reports whether the AI call can be attempted at all.
func (a AIConfig) Configured() bool {
	return a.URL != "" && a.Token != ""
}

// Configured reports whether reply delivery is possible.
func (c ChatwootConfig) Configured() bool {
	return c.BaseURL != "" && c.BotToken != ""
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PORT", 8080),
		Version: envStr("CHATRELAY_VERSION", "2.0.0"),
		AI: AIConfig{
			URL:          envStr("AI_API_URL", ""),
			Token:        envStr("AI_API_TOKEN", ""),
			SystemPrompt: envStr("AI_SYSTEM_PROMPT", DefaultSystemPrompt),
			Provider:     envStr("AI_PROVIDER", ""),
			Model:        envStr("AI_MODEL", ""),
			MaxTokens:    envInt("AI_MAX_TOKENS", 1000),
			Temperature:  envFloat("AI_TEMPERATURE", 0.7),
			MaxAttempts:  envInt("AI_MAX_ATTEMPTS", 3),
		},
		Chatwoot: ChatwootConfig{
			BaseURL:  envStr("CHATWOOT_URL", ""),
			BotToken: envStr("CHATWOOT_BOT_TOKEN", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "chatrelay"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
