package notion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgallion1/notiondocs/internal/doctree"
)

// Block is a block object as returned by the API. Children is filled in by
// Client.Blocks and may be present inline in exported JSON files.
type Block struct {
	Object      string  `json:"object,omitempty"`
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	HasChildren bool    `json:"has_children"`
	Children    []Block `json:"children,omitempty"`

	// Payload is the type-specific object, the value under the key named by Type.
	Payload json.RawMessage `json:"-"`
}

func (b *Block) UnmarshalJSON(data []byte) error {
	type plain Block
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*b = Block(p)
	if p.Type != "" {
		b.Payload = fields[p.Type]
	}
	return nil
}

func (b Block) MarshalJSON() ([]byte, error) {
	type plain Block
	data, err := json.Marshal(plain(b))
	if err != nil || b.Type == "" || len(b.Payload) == 0 {
		return data, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields[b.Type] = b.Payload
	return json.Marshal(fields)
}

type richText struct {
	PlainText   string `json:"plain_text"`
	Href        string `json:"href"`
	Annotations struct {
		Bold          bool `json:"bold"`
		Italic        bool `json:"italic"`
		Strikethrough bool `json:"strikethrough"`
		Code          bool `json:"code"`
	} `json:"annotations"`
}

type fileRef struct {
	URL string `json:"url"`
}

type payload struct {
	RichText []richText `json:"rich_text"`
	Language string     `json:"language"`
	Icon     *struct {
		Type  string `json:"type"`
		Emoji string `json:"emoji"`
	} `json:"icon"`

	// image
	Type     string     `json:"type"`
	External *fileRef   `json:"external"`
	File     *fileRef   `json:"file"`
	Caption  []richText `json:"caption"`
}

func spans(rt []richText) []doctree.Span {
	if rt == nil {
		return nil
	}
	out := make([]doctree.Span, 0, len(rt))
	for _, r := range rt {
		var a doctree.Annotation
		if r.Annotations.Bold {
			a |= doctree.Bold
		}
		if r.Annotations.Italic {
			a |= doctree.Italic
		}
		if r.Annotations.Strikethrough {
			a |= doctree.Strikethrough
		}
		if r.Annotations.Code {
			a |= doctree.Code
		}
		out = append(out, doctree.Span{Text: r.PlainText, Annotations: a, Link: r.Href})
	}
	return out
}

// Decode converts a block and its children to a content node. Unknown block
// types decode to KindUnknown, keeping their rich text when they have any.
// A payload that fails to parse is treated as empty.
func Decode(b Block) *doctree.Node {
	var p payload
	if len(b.Payload) > 0 {
		_ = json.Unmarshal(b.Payload, &p)
	}

	n := &doctree.Node{ID: b.ID}
	text := spans(p.RichText)
	if text == nil {
		text = []doctree.Span{}
	}

	switch {
	case strings.HasPrefix(b.Type, "heading_"):
		level, err := strconv.Atoi(strings.TrimPrefix(b.Type, "heading_"))
		if err != nil || level < 1 || level > 4 {
			unknown(n, b, p)
			break
		}
		n.Kind = doctree.KindHeading
		n.Level = level
		n.Spans = text
	case b.Type == "paragraph":
		n.Kind = doctree.KindParagraph
		n.Spans = text
	case b.Type == "bulleted_list_item":
		n.Kind = doctree.KindBulletItem
		n.Spans = text
	case b.Type == "numbered_list_item":
		n.Kind = doctree.KindNumberedItem
		n.Spans = text
	case b.Type == "code":
		n.Kind = doctree.KindCodeBlock
		n.Spans = text
		n.Language = p.Language
	case b.Type == "quote":
		n.Kind = doctree.KindQuote
		n.Spans = text
	case b.Type == "divider":
		n.Kind = doctree.KindDivider
	case b.Type == "image":
		n.Kind = doctree.KindImage
		n.Image = decodeImage(p)
	case b.Type == "callout":
		n.Kind = doctree.KindCallout
		n.Spans = text
		if p.Icon != nil {
			n.Icon = p.Icon.Emoji
		}
	case b.Type == "toggle":
		n.Kind = doctree.KindToggle
		n.Spans = text
	default:
		unknown(n, b, p)
	}

	for _, c := range b.Children {
		n.Children = append(n.Children, Decode(c))
	}
	return n
}

func unknown(n *doctree.Node, b Block, p payload) {
	n.Kind = doctree.KindUnknown
	n.RawKind = b.Type
	n.Spans = spans(p.RichText)
}

func decodeImage(p payload) *doctree.Image {
	img := &doctree.Image{Caption: spans(p.Caption)}
	switch {
	case p.Type == "external" && p.External != nil:
		img.Source = doctree.ImageExternal
		img.URL = p.External.URL
	case p.File != nil:
		img.Source = doctree.ImageFile
		img.URL = p.File.URL
	case p.External != nil:
		img.Source = doctree.ImageExternal
		img.URL = p.External.URL
	default:
		return nil
	}
	return img
}

// DecodeAll decodes a block list in order.
func DecodeAll(blocks []Block) []*doctree.Node {
	nodes := make([]*doctree.Node, 0, len(blocks))
	for _, b := range blocks {
		nodes = append(nodes, Decode(b))
	}
	return nodes
}

// imageOf returns the image payload of an image block.
func imageOf(b Block) (*doctree.Image, error) {
	if b.Type != "image" {
		return nil, fmt.Errorf("block %s is a %s, not an image", b.ID, b.Type)
	}
	var p payload
	if err := json.Unmarshal(b.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode image %s: %w", b.ID, err)
	}
	img := decodeImage(p)
	if img == nil {
		return nil, fmt.Errorf("image %s has no url", b.ID)
	}
	return img, nil
}
