// Package llm wraps the hosted language models used for chat and insights.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/toolhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrDisabled = errors.New("llm_disabled")

// MaxOutputTokens caps every completion so replies stay well inside a chat
// message.
const MaxOutputTokens = 600

var Module = fx.Module("llm",
	fx.Provide(New),
)

// Client completes a single prompt. system may be empty.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// New picks the configured provider and falls back to whichever key is set.
// Without any key the returned client reports ErrDisabled.
func New(cfg config.Config, log *zap.Logger) (Client, error) {
	log = log.Named("llm")
	llm := cfg.LLM

	provider := strings.ToLower(strings.TrimSpace(llm.Provider))
	switch {
	case provider == "gemini" && llm.GeminiAPIKey == "" && llm.OpenAIAPIKey != "":
		provider = "openai"
	case provider == "openai" && llm.OpenAIAPIKey == "" && llm.GeminiAPIKey != "":
		provider = "gemini"
	}

	switch provider {
	case "openai":
		if llm.OpenAIAPIKey == "" {
			break
		}
		log.Info("using openai", zap.String("model", llm.OpenAIModel))
		return NewOpenAI(llm.OpenAIBaseURL, llm.OpenAIAPIKey, llm.OpenAIModel, llm.Timeout), nil
	case "gemini":
		if llm.GeminiAPIKey == "" {
			break
		}
		log.Info("using gemini", zap.String("model", llm.GeminiModel))
		return NewGemini(context.Background(), llm.GeminiAPIKey, llm.GeminiModel, llm.Timeout)
	}

	log.Warn("no llm api key configured; chat replies fall back to templates")
	return Disabled{}, nil
}

type Disabled struct{}

func (Disabled) Complete(context.Context, string, string) (string, error) { return "", ErrDisabled }
func (Disabled) Name() string { return "disabled" }
