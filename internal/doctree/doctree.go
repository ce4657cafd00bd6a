// Package doctree holds the content tree consumed by the partitioner and the
// documents, sections and links it produces.
package doctree

// Kind identifies the type of a content node.
type Kind string

const (
	KindHeading      Kind = "heading"
	KindParagraph    Kind = "paragraph"
	KindBulletItem   Kind = "bullet_item"
	KindNumberedItem Kind = "numbered_item"
	KindCodeBlock    Kind = "code"
	KindQuote        Kind = "quote"
	KindDivider      Kind = "divider"
	KindImage        Kind = "image"
	KindCallout      Kind = "callout"
	KindToggle       Kind = "toggle"
	KindUnknown      Kind = "unknown"
)

// Annotation is a bit set of inline styles applied to a span.
type Annotation uint8

const (
	Bold Annotation = 1 << iota
	Italic
	Strikethrough
	Code
)

// Has reports whether all bits of a are set.
func (s Annotation) Has(a Annotation) bool { return s&a == a }

// Span is a run of text sharing the same annotations and link.
type Span struct {
	Text        string     `json:"text"`
	Annotations Annotation `json:"annotations,omitempty"`
	Link        string     `json:"link,omitempty"`
}

// ImageSource says where an image is hosted.
type ImageSource string

const (
	ImageExternal ImageSource = "external"
	ImageFile     ImageSource = "file" // hosted by the content API, URL expires
)

// Image is the payload of an image node.
type Image struct {
	Source  ImageSource `json:"source"`
	URL     string      `json:"url"`
	Caption []Span      `json:"caption,omitempty"`
}

// Node is a single block of the source tree. Children are owned by the parent.
type Node struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Level int    `json:"level,omitempty"` // headings only, 1..4

	// Spans is nil when the node carries no inline text payload at all.
	Spans []Span `json:"spans,omitempty"`

	Language string `json:"language,omitempty"` // code blocks
	Icon     string `json:"icon,omitempty"`     // callouts
	Image    *Image `json:"image,omitempty"`

	// RawKind keeps the source type name for unknown kinds.
	RawKind string `json:"raw_kind,omitempty"`

	Children []*Node `json:"children,omitempty"`
}

// IsHeading reports whether n is a heading of the given level. Level 0 matches any.
func (n *Node) IsHeading(level int) bool {
	if n == nil || n.Kind != KindHeading {
		return false
	}
	return level == 0 || n.Level == level
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Spans != nil {
		c.Spans = append([]Span{}, n.Spans...)
	}
	if n.Image != nil {
		img := *n.Image
		if n.Image.Caption != nil {
			img.Caption = append([]Span{}, n.Image.Caption...)
		}
		c.Image = &img
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Page is a rendered document flushed by the partitioner.
type Page struct {
	Title string `json:"title"` // raw, annotation-formatted
	Body  string `json:"body"`
	Slug  string `json:"slug"`
}

// Link is a navigation entry pointing at a page.
type Link struct {
	Title string `json:"title"`
	Href  string `json:"href"`
}

// Section is a top-level navigation group seeded by a level-1 heading.
type Section struct {
	Title string `json:"title"`
	Links []Link `json:"links"`
}
