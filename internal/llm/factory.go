package llm

import (
	"fmt"
	"strings"

	"chat-relay/internal/bots"
	"chat-relay/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// Factory creates streaming clients for bot configurations, falling
// back to the process-wide credentials when a bot does not carry its
// own.
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenRouterReferrer string
	OpenRouterTitle    string
	YandexOAuthToken   string
	YandexFolderID     string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
	}
}

func (f *Factory) CreateClient(bot bots.Config) (Client, error) {
	switch strings.ToLower(bot.Provider) {
	case ProviderOpenAI:
		apiKey := bot.APIKey
		if apiKey == "" {
			apiKey = f.OpenaiAPIKey
		}
		baseURL := bot.BaseURL
		if baseURL == "" {
			baseURL = f.OpenaiBaseURL
		}
		return NewOpenAI(apiKey, baseURL, bot.Model, bot.ReasoningEffort, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", bot.Provider)
	}
}
