package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document is one indexed section.
type Document struct {
	URL       string
	Title     string
	Content   string
	PageTitle string
}

// Result is a search hit.
type Result struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	PageTitle string `json:"pageTitle,omitempty"`
}

// candidateLimit caps the hits taken from each field before merging.
const candidateLimit = 20

// fold lowercases s and strips combining marks, so "Café" matches "cafe".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// tokenize splits folded text into words of letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type posting struct {
	doc int
	pos int // position of the first word carrying the prefix
}

// field is an inverted index over one document field. Every prefix of every
// word is a key, so a query term matches words that start with it.
type field struct {
	postings map[string][]posting
}

func newField() *field {
	return &field{postings: make(map[string][]posting)}
}

func (f *field) add(doc int, value string) {
	seen := make(map[string]bool)
	for pos, word := range tokenize(value) {
		rs := []rune(word)
		for i := 1; i <= len(rs); i++ {
			prefix := string(rs[:i])
			if seen[prefix] {
				continue
			}
			seen[prefix] = true
			f.postings[prefix] = append(f.postings[prefix], posting{doc: doc, pos: pos})
		}
	}
}

// search returns up to limit documents containing every term, best first.
// Documents score by the summed first positions of the terms; ties keep
// insertion order.
func (f *field) search(terms []string, limit int) []int {
	if len(terms) == 0 {
		return nil
	}
	score := make(map[int]int)
	for i, term := range terms {
		next := make(map[int]int)
		for _, p := range f.postings[term] {
			if i == 0 {
				next[p.doc] = p.pos
			} else if s, ok := score[p.doc]; ok {
				next[p.doc] = s + p.pos
			}
		}
		score = next
		if len(score) == 0 {
			return nil
		}
	}
	docs := make([]int, 0, len(score))
	for d := range score {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if score[docs[i]] != score[docs[j]] {
			return score[docs[i]] < score[docs[j]]
		}
		return docs[i] < docs[j]
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

// Index is an immutable in-memory section index with separate title and
// content fields.
type Index struct {
	docs         []Document
	title        *field
	content      *field
	defaultLimit int
}

// NewIndex indexes docs. A non-positive defaultLimit falls back to 5.
func NewIndex(docs []Document, defaultLimit int) *Index {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	idx := &Index{
		docs:         docs,
		title:        newField(),
		content:      newField(),
		defaultLimit: defaultLimit,
	}
	for i, d := range docs {
		idx.title.add(i, d.Title)
		idx.content.add(i, d.Content)
	}
	return idx
}

// Len is the number of indexed sections.
func (idx *Index) Len() int { return len(idx.docs) }

// Search matches query against titles first, then content. Title hits come
// before content hits, each URL appears once and at most limit results are
// returned.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return []Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = idx.defaultLimit
	}

	results := []Result{}
	seen := make(map[string]bool)
	for _, f := range []*field{idx.title, idx.content} {
		for _, i := range f.search(terms, candidateLimit) {
			d := idx.docs[i]
			if seen[d.URL] {
				continue
			}
			seen[d.URL] = true
			results = append(results, Result{URL: d.URL, Title: d.Title, PageTitle: d.PageTitle})
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
