package toolblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatParseRoundTrip(t *testing.T) {
	tools := []Tool{
		{Name: "Remove.bg", Description: "Removes\nbackgrounds", Category: "Image Editing", Logo: "https://cdn/logo.png", Slug: "remove-bg"},
		{Name: "Otter", Slug: "otter-ai"},
	}
	text := "Here are two picks:\n" + Format(tools)

	segs := Parse(text)
	require.Len(t, segs, 3)
	assert.Equal(t, KindText, segs[0].Kind)
	assert.Equal(t, "Here are two picks:\n", segs[0].Text)
	assert.Equal(t, "Removes backgrounds", segs[1].Tool.Description)
	assert.Equal(t, "https://cdn/logo.png", segs[1].Tool.Logo)
	assert.Equal(t, Tool{Name: "Otter", Slug: "otter-ai"}, *segs[2].Tool)
}

func TestParseSplitsAtFirstColon(t *testing.T) {
	tools := Tools("[TOOL]\nname: Ratio: Pro\nlogo: https://x.test/a.png\n[/TOOL]\n")
	require.Len(t, tools, 1)
	assert.Equal(t, "Ratio: Pro", tools[0].Name)
	assert.Equal(t, "https://x.test/a.png", tools[0].Logo)
}

func TestMalformedBlocksDegradeToText(t *testing.T) {
	unclosed := "intro [TOOL]\nname: Lost\n"
	segs := Parse(unclosed)
	require.Len(t, segs, 1)
	assert.Equal(t, unclosed, segs[0].Text)

	nameless := "a [TOOL]\ndescription: no name\n[/TOOL] b"
	segs = Parse(nameless)
	require.Len(t, segs, 1)
	assert.Equal(t, nameless, segs[0].Text)
}

func TestParsePlainText(t *testing.T) {
	assert.Equal(t, []Segment{{Kind: KindText, Text: "hello"}}, Parse("hello"))
	assert.Empty(t, Parse("  \n"))
	assert.Empty(t, Format(nil))
}
