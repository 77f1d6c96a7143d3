package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr   string
	ChatBackend  string
	GeminiAPIKey string
	GeminiModel  string
	ClaudeAPIKey string
	ClaudeModel  string
	OllamaHost   string
	OllamaModel  string
	ChatTimeout  time.Duration
	ModesFile    string
	SessionTTL   time.Duration
	MaxImageDim  int
	LogLevel     string
	LogFile      string
	LogMaxSizeMB int
}

func Load() *Config {
	return &Config{
		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		ChatBackend:  getEnv("CHAT_BACKEND", "gemini"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ClaudeAPIKey: getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:  getEnv("CLAUDE_MODEL", "claude-sonnet-4-5"),
		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:  getEnv("OLLAMA_MODEL", "llava"),
		ChatTimeout:  getDuration("CHAT_TIMEOUT", 120*time.Second),
		ModesFile:    getEnv("MODES_FILE", ""),
		SessionTTL:   getDuration("SESSION_TTL", 30*time.Minute),
		MaxImageDim:  getInt("MAX_IMAGE_DIM", 1024),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFile:      getEnv("LOG_FILE", ""),
		LogMaxSizeMB: getInt("LOG_MAX_SIZE_MB", 10),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

// getDuration parses key with time.ParseDuration; unparsable or non-positive
// values fall back to defaultVal.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
