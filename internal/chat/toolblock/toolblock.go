// Package toolblock encodes tool recommendations inside assistant text.
//
// A block looks like:
//
//	[TOOL]
//	name: Remove.bg
//	description: Removes image backgrounds.
//	category: Image Editing
//	logo: https://cdn.example/removebg.png
//	slug: remove-bg
//	[/TOOL]
//
// Each line is split at its first colon. Unknown keys are ignored.
package toolblock

import (
	"strings"
)

const (
	Open  = "[TOOL]"
	Close = "[/TOOL]"
)

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Logo        string `json:"logo,omitempty"`
	Slug        string `json:"slug,omitempty"`
}

type Kind string

const (
	KindText Kind = "text"
	KindTool Kind = "tool"
)

// Segment is either a run of plain text or one decoded tool.
type Segment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text,omitempty"`
	Tool *Tool  `json:"tool,omitempty"`
}

// Format renders tools as consecutive blocks, each newline terminated.
func Format(tools []Tool) string {
	var b strings.Builder
	for _, t := range tools {
		b.WriteString(Open)
		b.WriteByte('\n')
		writeField(&b, "name", t.Name)
		writeField(&b, "description", t.Description)
		writeField(&b, "category", t.Category)
		writeField(&b, "logo", t.Logo)
		writeField(&b, "slug", t.Slug)
		b.WriteString(Close)
		b.WriteByte('\n')
	}
	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return
	}
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

// Parse splits text into segments. A block with no closing delimiter or no
// name is kept verbatim as text. Whitespace-only text between blocks is
// dropped.
func Parse(text string) []Segment {
	var out []Segment
	rest := text
	for {
		start := strings.Index(rest, Open)
		if start < 0 {
			out = appendText(out, rest)
			return out
		}
		end := strings.Index(rest[start+len(Open):], Close)
		if end < 0 {
			out = appendText(out, rest)
			return out
		}
		end += start + len(Open)

		body := rest[start+len(Open) : end]
		blockEnd := end + len(Close)
		tool, ok := parseBlock(body)
		if ok {
			out = appendText(out, rest[:start])
			out = append(out, Segment{Kind: KindTool, Tool: tool})
		} else {
			out = appendText(out, rest[:blockEnd])
		}
		rest = rest[blockEnd:]
	}
}

// Tools returns only the decoded tools of text.
func Tools(text string) []Tool {
	var tools []Tool
	for _, seg := range Parse(text) {
		if seg.Kind == KindTool {
			tools = append(tools, *seg.Tool)
		}
	}
	return tools
}

func parseBlock(body string) (*Tool, bool) {
	tool := &Tool{}
	for _, line := range strings.Split(body, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			tool.Name = value
		case "description":
			tool.Description = value
		case "category":
			tool.Category = value
		case "logo":
			tool.Logo = value
		case "slug":
			tool.Slug = value
		}
	}
	if tool.Name == "" {
		return nil, false
	}
	return tool, true
}

func appendText(out []Segment, text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Kind == KindText {
		out[n-1].Text += text
		return out
	}
	return append(out, Segment{Kind: KindText, Text: text})
}
