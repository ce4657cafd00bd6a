// Package partition splits an ordered node stream into sections and pages.
//
// Level-1 headings open a navigation section, level-2 headings open a page.
// Every page body starts with the rendered heading of its section followed by
// its own heading. Content seen before any heading is dropped.
package partition

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/render"
	"github.com/dgallion1/notiondocs/internal/slug"
)

// DocsPrefix is prepended to page slugs in navigation links.
const DocsPrefix = "/docs/"

// Phase is the coarse state of the partitioner.
type Phase int

const (
	NoSection Phase = iota
	InPage          // page opened by a level-2 heading before any section
	InSection
	InSectionInPage
)

func (p Phase) String() string {
	switch p {
	case NoSection:
		return "no_section"
	case InPage:
		return "in_page"
	case InSection:
		return "in_section"
	case InSectionInPage:
		return "in_section_in_page"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is the partitioner state between two nodes. It is a value: Step never
// mutates the state it is given.
type State struct {
	sectionOpen  bool
	sectionTitle string // cleaned, for navigation
	sectionRaw   string // formatted, for the loose page title
	heading      string // rendered level-1 heading, prefixed to every page
	loose        string // content after the section heading while no page is open
	links        []doctree.Link

	pageOpen  bool
	pageTitle string
	pageBody  string
}

// Phase reports which of the partitioner states s is in.
func (s State) Phase() Phase {
	switch {
	case s.sectionOpen && s.pageOpen:
		return InSectionInPage
	case s.sectionOpen:
		return InSection
	case s.pageOpen:
		return InPage
	}
	return NoSection
}

// Emit is what a single transition produces.
type Emit struct {
	Pages   []doctree.Page
	Section *doctree.Section
}

// Step applies one node to s.
func Step(s State, n *doctree.Node) (State, Emit) {
	if n == nil {
		return s, Emit{}
	}
	switch {
	case n.IsHeading(1):
		return openSection(s, n)
	case n.IsHeading(2):
		return openPage(s, n)
	}

	md := render.Render(n)
	switch {
	case s.pageOpen:
		s.pageBody += md
	case s.sectionOpen:
		s.loose += md
	}
	return s, Emit{}
}

// Finish closes whatever is still open at the end of the stream.
func Finish(s State) Emit {
	var e Emit
	e.Pages = flushOpen(s)
	if s.sectionOpen {
		e.Section = finalize(s)
	}
	return e
}

func openSection(s State, n *doctree.Node) (State, Emit) {
	var e Emit
	e.Pages = flushOpen(s)
	if s.sectionOpen {
		e.Section = finalize(s)
	}

	raw := render.FormatSpans(n.Spans)
	next := State{
		sectionOpen:  true,
		sectionTitle: CleanTitle(raw),
		sectionRaw:   raw,
		heading:      render.Render(n),
		links:        []doctree.Link{},
	}
	return next, e
}

func openPage(s State, n *doctree.Node) (State, Emit) {
	var e Emit
	if s.pageOpen {
		e.Pages = []doctree.Page{newPage(s.pageTitle, s.pageBody)}
	}

	raw := render.FormatSpans(n.Spans)
	if s.sectionOpen {
		title := CleanTitle(raw)
		s.links = append(slices.Clip(s.links), doctree.Link{
			Title: title,
			Href:  DocsPrefix + slug.Slugify(title),
		})
	}

	// Loose content between the section heading and its first page is dropped.
	s.loose = ""
	s.pageOpen = true
	s.pageTitle = raw
	s.pageBody = s.heading + render.Render(n)
	return s, e
}

// flushOpen returns the open page, or the loose section content when no page
// was opened.
func flushOpen(s State) []doctree.Page {
	if s.pageOpen {
		return []doctree.Page{newPage(s.pageTitle, s.pageBody)}
	}
	if s.sectionOpen {
		if body := s.heading + s.loose; body != "" {
			return []doctree.Page{newPage(s.sectionRaw, body)}
		}
	}
	return nil
}

func finalize(s State) *doctree.Section {
	return &doctree.Section{
		Title: s.sectionTitle,
		Links: slices.Clone(s.links),
	}
}

func newPage(title, body string) doctree.Page {
	return doctree.Page{Title: title, Body: body, Slug: slug.Slugify(title)}
}

// CleanTitle strips bold markers, turns newlines into spaces and trims.
func CleanTitle(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// Result is the output of a full traversal.
type Result struct {
	Pages      []doctree.Page
	Navigation []doctree.Section
}

// Partition runs the state machine over nodes.
func Partition(nodes []*doctree.Node) Result {
	res := Result{Navigation: []doctree.Section{}}
	var s State
	for _, n := range nodes {
		var e Emit
		s, e = Step(s, n)
		res.collect(e)
	}
	res.collect(Finish(s))
	return res
}

func (r *Result) collect(e Emit) {
	r.Pages = append(r.Pages, e.Pages...)
	if e.Section != nil {
		r.Navigation = append(r.Navigation, *e.Section)
	}
}

// Saver receives flushed pages. Implementations skip empty titles or bodies.
type Saver interface {
	Save(ctx context.Context, title, body string) error
}

// Run partitions nodes and hands every flushed page to sink in traversal
// order. The first sink error aborts the run.
func Run(ctx context.Context, nodes []*doctree.Node, sink Saver) (Result, error) {
	res := Result{Navigation: []doctree.Section{}}
	emit := func(e Emit) error {
		for _, p := range e.Pages {
			if err := sink.Save(ctx, p.Title, p.Body); err != nil {
				return fmt.Errorf("save page %q: %w", p.Slug, err)
			}
		}
		res.collect(e)
		return nil
	}

	var s State
	for i, n := range nodes {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("partition at node %d: %w", i, err)
		}
		var e Emit
		s, e = Step(s, n)
		if err := emit(e); err != nil {
			return Result{}, err
		}
	}
	if err := emit(Finish(s)); err != nil {
		return Result{}, err
	}
	return res, nil
}
