package render

import (
	"strings"

	"github.com/dgallion1/notiondocs/internal/doctree"
)

// Render maps a node and, recursively, its children to Markdown. It is pure
// and never fails: unknown kinds degrade to their inline text or nothing.
func Render(n *doctree.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	render(&sb, n)
	return sb.String()
}

func render(sb *strings.Builder, n *doctree.Node) {
	sb.WriteString(block(n))
	for _, child := range n.Children {
		if child != nil {
			render(sb, child)
		}
	}
}

// block renders the node's own fragment without its children.
func block(n *doctree.Node) string {
	text := FormatSpans(n.Spans)
	switch n.Kind {
	case doctree.KindHeading:
		return strings.Repeat("#", headingLevel(n.Level)) + " " + text + "\n\n"
	case doctree.KindParagraph:
		if text == "" {
			return "\n"
		}
		return text + "\n\n"
	case doctree.KindBulletItem:
		return "* " + text + "\n"
	case doctree.KindNumberedItem:
		// Always "1."; Markdown renderers number the list themselves.
		return "1. " + text + "\n"
	case doctree.KindCodeBlock:
		return "```" + n.Language + "\n" + text + "\n```\n\n"
	case doctree.KindQuote:
		return "> " + text + "\n\n"
	case doctree.KindDivider:
		return "---\n\n"
	case doctree.KindImage:
		return image(n.Image)
	case doctree.KindCallout:
		line := text
		if n.Icon != "" {
			line = n.Icon + " " + text
		}
		return "{% callout type=\"note\" %}\n" + line + "\n{% /callout %}\n\n"
	case doctree.KindToggle:
		return "<details>\n<summary>" + text + "</summary>\n\n</details>\n\n"
	default:
		if n.Spans == nil {
			return ""
		}
		return text + "\n\n"
	}
}

func image(img *doctree.Image) string {
	if img == nil {
		return ""
	}
	caption := FormatSpans(img.Caption)
	if caption == "" {
		caption = "Image"
	}
	return "![" + caption + "](" + img.URL + ")\n\n"
}

func headingLevel(level int) int {
	switch {
	case level < 1:
		return 1
	case level > 4:
		return 4
	}
	return level
}
