package search

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/notiondocs/internal/slug"
)

// Section is a searchable slice of a page: the text under one heading of
// level 1 or 2. The zeroth section of a page holds the front matter title and
// anything before the first such heading; its Anchor is empty.
type Section struct {
	Title  string
	Anchor string
	Level  int
	Lines  []string
}

// fallbackAnchor is the anchor base for headings whose text has no [a-z0-9]
// characters, such as Cyrillic or punctuation-only headings.
const fallbackAnchor = "section"

type pageMeta struct {
	Title string `yaml:"title"`
}

var md = goldmark.New(goldmark.WithParserOptions(parser.WithAttribute()))

// ExtractSections splits Markdown source into sections. Anchors come from an
// explicit {#id} attribute, otherwise from counter, which is reset first so
// anchors are unique within the page.
func ExtractSections(src []byte, counter *slug.Counter) ([]Section, error) {
	var meta pageMeta
	body, err := frontmatter.Parse(bytes.NewReader(src), &meta)
	if err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}

	counter.Reset()
	sections := []Section{{Title: strings.TrimSpace(meta.Title)}}
	appendLine := func(line string) {
		if line == "" {
			return
		}
		last := &sections[len(sections)-1]
		last.Lines = append(last.Lines, line)
	}

	doc := md.Parser().Parse(text.NewReader(body))
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			content := strings.TrimSpace(inlineText(node, body))
			if node.Level <= 2 {
				anchor, ok := headingID(node)
				if !ok {
					base := slug.Slugify(content)
					if base == "" {
						base = fallbackAnchor
					}
					anchor = counter.Claim(base)
				}
				sections = append(sections, Section{Title: content, Anchor: anchor, Level: node.Level})
			} else {
				appendLine(content)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			appendLine(dropTagLines(inlineText(node, body)))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			appendLine(strings.TrimSpace(string(blockLines(node, body))))
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			appendLine(htmlText(blockLines(node, body)))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}
	return sections, nil
}

func headingID(h *ast.Heading) (string, bool) {
	v, ok := h.AttributeString("id")
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case []byte:
		return string(id), len(id) > 0
	case string:
		return id, id != ""
	}
	return "", false
}

// inlineText concatenates the text of inline descendants. Image alt text and
// inline HTML are skipped.
func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				buf.Write(node.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(node.Value)
			case *ast.AutoLink:
				buf.Write(node.Label(src))
			case *ast.Image, *ast.RawHTML:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return buf.String()
}

// dropTagLines removes markdoc tag lines such as {% callout %} and trims the
// remainder.
func dropTagLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "{%") && strings.HasSuffix(t, "%}") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func blockLines(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.Bytes()
}

// htmlText returns the visible text of an HTML fragment, one line per text
// node.
func htmlText(raw []byte) string {
	nodes, err := html.ParseFragment(bytes.NewReader(raw), &html.Node{
		Type: html.ElementNode, Data: "body", DataAtom: atom.Body,
	})
	if err != nil {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}
