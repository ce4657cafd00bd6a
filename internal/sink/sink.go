// Package sink persists rendered pages and the navigation of a site build.
//
// A build writes through a Batch: pages and navigation become visible to
// readers only on Commit, and a rolled back batch leaves the previous site
// untouched.
package sink

import (
	"context"
	"errors"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/slug"
)

// ErrNotFound is returned when a page does not exist.
var ErrNotFound = errors.New("page not found")

// Sink receives pages. Save is a no-op when title or body is empty; otherwise
// the body is stored under slug.Slugify(title), replacing any earlier page
// with the same slug.
type Sink interface {
	Save(ctx context.Context, title, body string) error
}

// Batch collects one complete site build.
type Batch interface {
	Sink
	SaveNavigation(ctx context.Context, nav []doctree.Section) error
	Commit(ctx context.Context) error
	// Rollback discards the batch. It is a no-op after Commit.
	Rollback() error
}

// Store is a readable site store.
type Store interface {
	Begin(ctx context.Context) (Batch, error)
	Page(ctx context.Context, slug string) (StoredPage, error)
	Pages(ctx context.Context) ([]StoredPage, error)
	Navigation(ctx context.Context) ([]doctree.Section, error)
	Close() error
}

// StoredPage is a persisted page. Title is empty for stores that only keep
// the body.
type StoredPage struct {
	Slug  string `json:"slug"`
	Title string `json:"title,omitempty"`
	Body  string `json:"content"`
}

// URL is the site path of the page.
func (p StoredPage) URL() string {
	return "/docs/" + p.Slug
}

// ShouldSave reports whether a page with this title and body is persisted.
func ShouldSave(title, body string) bool {
	return title != "" && body != ""
}

// validSlug rejects lookups that could not have come from Slugify.
func validSlug(s string) bool {
	return slug.Slugify(s) == s
}

var errBatchDone = errors.New("batch already committed or rolled back")
