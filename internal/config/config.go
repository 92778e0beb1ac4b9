package config

import (
	"log"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	// Auth
	AuthToken      string `env:"AUTH_TOKEN"`
	TokensFilePath string `env:"TOKENS_FILE_PATH" envDefault:"data/tokens.json"`

	// Storage
	RedisAddr       string `env:"REDIS_ADDR"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	ArchiveFilePath string `env:"ARCHIVE_FILE_PATH" envDefault:"data/chats.jsonl"`
	CompactSchedule string `env:"ARCHIVE_COMPACT_SCHEDULE" envDefault:"0 3 * * *"`

	// Bots
	BotsFilePath string `env:"BOTS_FILE_PATH" envDefault:"data/bots.json"`

	// LLM settings
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	YandexOAuthToken string `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Tool servers, each entry "name=command arg1 arg2"
	MCPServers []string `env:"MCP_SERVERS" envSeparator:";"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
