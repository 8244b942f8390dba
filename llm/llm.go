// Package llm builds the chat models behind the turn engine from configuration.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/tbxark/formchat/config"
)

// New returns the chat model selected by conf.Provider.
func New(ctx context.Context, conf *config.Config) (model.ToolCallingChatModel, error) {
	switch conf.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAI(ctx, conf)
	case config.ProviderGemini:
		return NewGemini(ctx, conf.APIKey, WithGeminiModel(conf.Model), WithGeminiBaseURL(conf.BaseURL))
	default:
		return nil, fmt.Errorf("unknown provider %q", conf.Provider)
	}
}

func NewOpenAI(ctx context.Context, conf *config.Config) (model.ToolCallingChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  conf.APIKey,
		Model:   conf.Model,
		BaseURL: conf.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return cm, nil
}
