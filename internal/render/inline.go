// Package render turns content nodes into Markdown fragments.
package render

import (
	"strings"

	"github.com/dgallion1/notiondocs/internal/doctree"
)

// FormatSpans renders spans as Markdown, concatenated in order. Each span is
// wrapped bold, italic, strikethrough, code and finally link, innermost first.
// Markdown-special characters in the text are passed through unescaped.
func FormatSpans(spans []doctree.Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(formatSpan(s))
	}
	return sb.String()
}

func formatSpan(s doctree.Span) string {
	text := s.Text
	if s.Annotations.Has(doctree.Bold) {
		text = "**" + text + "**"
	}
	if s.Annotations.Has(doctree.Italic) {
		text = "*" + text + "*"
	}
	if s.Annotations.Has(doctree.Strikethrough) {
		text = "~~" + text + "~~"
	}
	if s.Annotations.Has(doctree.Code) {
		text = "`" + text + "`"
	}
	if s.Link != "" {
		text = "[" + text + "](" + s.Link + ")"
	}
	return text
}

// PlainText concatenates span text without any markup.
func PlainText(spans []doctree.Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}
