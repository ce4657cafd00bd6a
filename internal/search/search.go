// Package search builds a section-level full-text index over rendered pages
// and answers queries against it.
package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/notiondocs/internal/slug"
)

// DefaultLimit is the result count used when a query gives none.
const DefaultLimit = 5

// Engine answers queries. An empty or blank query yields an empty slice.
type Engine interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Ranking selects the engine an Indexer builds.
type Ranking string

const (
	RankingIndex   Ranking = "index"
	RankingKeyword Ranking = "keyword"
)

func ParseRanking(s string) (Ranking, error) {
	switch r := Ranking(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RankingIndex, nil
	case RankingIndex, RankingKeyword:
		return r, nil
	default:
		return "", fmt.Errorf("unknown search ranking %q", s)
	}
}

// Page is a rendered page handed to the indexer.
type Page struct {
	URL      string
	Markdown string
}

// Indexer owns the live engine and a content-addressed cache of parsed
// sections. Rebuild swaps in a new engine; searches running at that moment
// finish against the old one.
type Indexer struct {
	log          *slog.Logger
	ranking      Ranking
	defaultLimit int

	buildMu sync.Mutex
	memo    map[[sha256.Size]byte][]Section

	mu     sync.RWMutex
	engine Engine
	size   int
}

func NewIndexer(ranking Ranking, defaultLimit int, log *slog.Logger) *Indexer {
	x := &Indexer{
		log:          log,
		ranking:      ranking,
		defaultLimit: defaultLimit,
		memo:         make(map[[sha256.Size]byte][]Section),
	}
	x.engine = x.newEngine(nil)
	return x
}

func (x *Indexer) newEngine(docs []Document) Engine {
	if x.ranking == RankingKeyword {
		return NewKeywordEngine(docs, x.defaultLimit)
	}
	return NewIndex(docs, x.defaultLimit)
}

// Rebuild indexes pages and makes the result live. Cache entries for sources
// no longer present are dropped.
func (x *Indexer) Rebuild(ctx context.Context, pages []Page) (int, error) {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()

	counter := slug.NewCounter()
	memo := make(map[[sha256.Size]byte][]Section, len(pages))
	var docs []Document
	hits := 0
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		key := sha256.Sum256([]byte(p.Markdown))
		sections, ok := x.memo[key]
		if ok {
			hits++
		} else {
			var err error
			sections, err = ExtractSections([]byte(p.Markdown), counter)
			if err != nil {
				return 0, fmt.Errorf("index %s: %w", p.URL, err)
			}
		}
		memo[key] = sections
		docs = append(docs, Documents(p, sections)...)
	}

	engine := x.newEngine(docs)
	x.mu.Lock()
	x.engine = engine
	x.size = len(docs)
	x.mu.Unlock()
	x.memo = memo

	x.log.Info("search index rebuilt",
		"pages", len(pages),
		"sections", len(docs),
		"cache_hits", hits,
		"ranking", string(x.ranking),
	)
	return len(docs), nil
}

// Search runs query against the live engine.
func (x *Indexer) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}
	x.mu.RLock()
	engine := x.engine
	x.mu.RUnlock()
	return engine.Search(ctx, query, limit)
}

// Size is the number of sections in the live engine.
func (x *Indexer) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.size
}

// Documents turns the sections of one page into index documents. The page
// title is the front matter title, else the first level-2 heading, else the
// first level-1 heading. Heading sections link to their anchor and carry the
// page title; an empty zeroth section is skipped.
func Documents(p Page, sections []Section) []Document {
	if len(sections) == 0 {
		return nil
	}
	pageTitle := sections[0].Title
	for _, level := range []int{2, 1} {
		for _, s := range sections {
			if pageTitle != "" {
				break
			}
			if s.Level == level {
				pageTitle = s.Title
			}
		}
	}

	docs := make([]Document, 0, len(sections))
	for i, s := range sections {
		if i == 0 && s.Title == "" && len(s.Lines) == 0 {
			continue
		}
		d := Document{URL: p.URL, Title: s.Title}
		if s.Level > 0 {
			d.URL += "#" + s.Anchor
			d.PageTitle = pageTitle
		}
		parts := make([]string, 0, len(s.Lines)+1)
		if s.Title != "" {
			parts = append(parts, s.Title)
		}
		d.Content = strings.Join(append(parts, s.Lines...), "\n")
		docs = append(docs, d)
	}
	return docs
}
