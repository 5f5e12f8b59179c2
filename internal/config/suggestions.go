package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// QueryPlaceholder is replaced by the user's query in suggestion templates.
const QueryPlaceholder = "{query}"

// SuggestionsConfig holds the text that shapes autocomplete and LLM prompts.
type SuggestionsConfig struct {
	Templates        []string `mapstructure:"templates" yaml:"templates"`
	ChatSystemPrompt string   `mapstructure:"chatSystemPrompt" yaml:"chatSystemPrompt"`
	InsightsPrompt   string   `mapstructure:"insightsPrompt" yaml:"insightsPrompt"`
	MaxTools         int      `mapstructure:"maxTools" yaml:"maxTools"`
}

func DefaultSuggestionsConfig() SuggestionsConfig {
	return SuggestionsConfig{
		Templates: []string{
			"I need an AI tool that can {query}",
			"I need an AI tool to {query}",
			"I need an AI tool for {query}",
			"I need an AI tool that helps me {query}",
			"I need an AI tool that can help with {query}",
		},
		ChatSystemPrompt: "You recommend AI tools from a curated directory. " +
			"Answer in two or three friendly sentences and only mention tools from the provided list.",
		InsightsPrompt: "Write three short insights about how teams use AI tools in the {query} category. " +
			"Return plain text, one insight per line.",
		MaxTools: 5,
	}
}

// Expand renders every template for the given query.
func (c SuggestionsConfig) Expand(query string) []string {
	query = strings.TrimSpace(query)
	out := make([]string, 0, len(c.Templates))
	for _, tmpl := range c.Templates {
		out = append(out, strings.ReplaceAll(tmpl, QueryPlaceholder, query))
	}
	return out
}

type SuggestionsHolder struct {
	current atomic.Value // holds SuggestionsConfig
}

// NewStaticSuggestionsHolder wraps a fixed config without file watching.
func NewStaticSuggestionsHolder(cfg SuggestionsConfig) *SuggestionsHolder {
	holder := &SuggestionsHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSuggestionsHolder(log *zap.Logger) (*SuggestionsHolder, error) {
	log = log.Named("config.suggestions")
	v := viper.New()

	v.SetConfigName("suggestions")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/toolhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TOOLHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSuggestionsConfig()
	v.SetDefault("suggestions.templates", defaults.Templates)
	v.SetDefault("suggestions.chatSystemPrompt", defaults.ChatSystemPrompt)
	v.SetDefault("suggestions.insightsPrompt", defaults.InsightsPrompt)
	v.SetDefault("suggestions.maxTools", defaults.MaxTools)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg SuggestionsConfig
	if err := v.UnmarshalKey("suggestions", &cfg); err != nil {
		return nil, err
	}
	if err := validateSuggestionsConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSuggestionsHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SuggestionsConfig
		if err := v.UnmarshalKey("suggestions", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateSuggestionsConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SuggestionsHolder) Get() SuggestionsConfig {
	return h.current.Load().(SuggestionsConfig)
}

func validateSuggestionsConfig(cfg SuggestionsConfig) error {
	if len(cfg.Templates) == 0 {
		return errors.New("suggestions.templates cannot be empty")
	}
	for _, tmpl := range cfg.Templates {
		if !strings.Contains(tmpl, QueryPlaceholder) {
			return errors.New("suggestions.templates entries must contain " + QueryPlaceholder)
		}
	}
	if cfg.MaxTools <= 0 {
		return errors.New("suggestions.maxTools must be positive")
	}
	return nil
}
