package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSuggestionsExpand(t *testing.T) {
	got := DefaultSuggestionsConfig().Expand("  resize images ")

	require.Len(t, got, 5)
	for _, s := range got {
		assert.True(t, strings.HasPrefix(s, "I need an AI tool"), s)
		assert.True(t, strings.HasSuffix(s, "resize images"), s)
	}
	assert.Equal(t, "I need an AI tool that can resize images", got[0])
	assert.Equal(t, "I need an AI tool to resize images", got[1])
	assert.Equal(t, "I need an AI tool for resize images", got[2])
}

func TestValidateSuggestionsConfig(t *testing.T) {
	cfg := DefaultSuggestionsConfig()
	require.NoError(t, validateSuggestionsConfig(cfg))

	cfg.Templates = []string{"no placeholder here"}
	assert.Error(t, validateSuggestionsConfig(cfg))

	cfg = DefaultSuggestionsConfig()
	cfg.Templates = nil
	assert.Error(t, validateSuggestionsConfig(cfg))

	cfg = DefaultSuggestionsConfig()
	cfg.MaxTools = 0
	assert.Error(t, validateSuggestionsConfig(cfg))
}

func TestStaticHolder(t *testing.T) {
	cfg := DefaultSuggestionsConfig()
	cfg.MaxTools = 9
	holder := NewStaticSuggestionsHolder(cfg)
	assert.Equal(t, 9, holder.Get().MaxTools)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, parseList(" https://a.com/ ,,https://b.com"))
	assert.Empty(t, parseList(""))
}
