package search

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// KeywordEngine ranks by substring containment of every query word: 10 when
// the title holds all words, 1 when the content does. Documents matching
// neither are excluded. Ties are ordered by title.
type KeywordEngine struct {
	docs         []Document
	defaultLimit int
}

func NewKeywordEngine(docs []Document, defaultLimit int) *KeywordEngine {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &KeywordEngine{docs: docs, defaultLimit: defaultLimit}
}

func (k *KeywordEngine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	words := strings.Fields(fold(query))
	if len(words) == 0 {
		return []Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = k.defaultLimit
	}

	type scored struct {
		Result
		score int
	}
	var hits []scored
	seen := make(map[string]bool)
	for _, d := range k.docs {
		if seen[d.URL] {
			continue
		}
		title, content := fold(d.Title), fold(d.Content)
		inTitle, inContent := true, true
		for _, w := range words {
			inTitle = inTitle && strings.Contains(title, w)
			inContent = inContent && strings.Contains(content, w)
		}
		var score int
		switch {
		case inTitle:
			score = 10
		case inContent:
			score = 1
		default:
			continue
		}
		seen[d.URL] = true
		hits = append(hits, scored{
			Result: Result{URL: d.URL, Title: d.Title, PageTitle: d.PageTitle},
			score:  score,
		})
	}

	col := collate.New(language.English)
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return col.CompareString(hits[i].Title, hits[j].Title) < 0
	})

	results := make([]Result, 0, min(limit, len(hits)))
	for _, h := range hits {
		if len(results) == limit {
			break
		}
		results = append(results, h.Result)
	}
	return results, nil
}
