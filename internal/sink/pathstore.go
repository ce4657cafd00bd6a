package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/pathstore"
	"github.com/dgallion1/notiondocs/internal/slug"
)

const pathstoreListLimit = 10000

// Pathstore keeps the site in a remote pathstore under prefix:
// <prefix>/pages/<slug> and <prefix>/navigation. Batches are buffered in
// memory and pushed on commit.
type Pathstore struct {
	client *pathstore.Client
	prefix string
	source string
}

func NewPathstore(client *pathstore.Client, prefix string) *Pathstore {
	return &Pathstore{client: client, prefix: prefix, source: "notiondocs"}
}

type pathstorePage struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (p *Pathstore) pagesKey() string { return p.prefix + "/pages" }
func (p *Pathstore) navKey() string   { return p.prefix + "/navigation" }

func (p *Pathstore) Begin(context.Context) (Batch, error) {
	return &pathstoreBatch{store: p, pages: make(map[string]pathstorePage)}, nil
}

func (p *Pathstore) Page(ctx context.Context, s string) (StoredPage, error) {
	if !validSlug(s) {
		return StoredPage{}, ErrNotFound
	}
	node, err := p.client.GetNode(ctx, p.pagesKey()+"/"+s)
	if err != nil {
		return StoredPage{}, err
	}
	if node == nil {
		return StoredPage{}, ErrNotFound
	}
	var v pathstorePage
	if err := json.Unmarshal(node.Value, &v); err != nil {
		return StoredPage{}, fmt.Errorf("decode page %s: %w", s, err)
	}
	return StoredPage{Slug: s, Title: v.Title, Body: v.Body}, nil
}

func (p *Pathstore) Pages(ctx context.Context) ([]StoredPage, error) {
	nodes, err := p.client.ListChildren(ctx, p.pagesKey(), pathstoreListLimit)
	if err != nil {
		return nil, err
	}
	pages := make([]StoredPage, 0, len(nodes))
	for _, n := range nodes {
		var v pathstorePage
		if err := json.Unmarshal(n.Value, &v); err != nil {
			return nil, fmt.Errorf("decode page %s: %w", n.Key, err)
		}
		pages = append(pages, StoredPage{Slug: v.Slug, Title: v.Title, Body: v.Body})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Slug < pages[j].Slug })
	return pages, nil
}

func (p *Pathstore) Navigation(ctx context.Context) ([]doctree.Section, error) {
	node, err := p.client.GetNode(ctx, p.navKey())
	if err != nil {
		return nil, err
	}
	nav := []doctree.Section{}
	if node == nil {
		return nav, nil
	}
	if err := json.Unmarshal(node.Value, &nav); err != nil {
		return nil, fmt.Errorf("decode navigation: %w", err)
	}
	return nav, nil
}

func (p *Pathstore) Close() error {
	p.client.Close()
	return nil
}

type pathstoreBatch struct {
	store *Pathstore
	order []string
	pages map[string]pathstorePage
	nav   []doctree.Section
	done  bool
}

func (b *pathstoreBatch) Save(_ context.Context, title, body string) error {
	if !ShouldSave(title, body) {
		return nil
	}
	s := slug.Slugify(title)
	if _, ok := b.pages[s]; !ok {
		b.order = append(b.order, s)
	}
	b.pages[s] = pathstorePage{Slug: s, Title: title, Body: body}
	return nil
}

func (b *pathstoreBatch) SaveNavigation(_ context.Context, nav []doctree.Section) error {
	b.nav = nav
	return nil
}

// Commit replaces the remote site. The remote store has no transactions, so a
// failure part way leaves the pages written so far in place.
func (b *pathstoreBatch) Commit(ctx context.Context) error {
	if b.done {
		return errBatchDone
	}
	b.done = true
	c := b.store.client
	if err := c.DeleteNode(ctx, b.store.pagesKey(), true); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	for _, s := range b.order {
		req := pathstore.NodeRequest{Value: b.pages[s], Source: b.store.source}
		if err := c.PutNode(ctx, b.store.pagesKey()+"/"+s, req); err != nil {
			return fmt.Errorf("put page %s: %w", s, err)
		}
	}
	nav := b.nav
	if nav == nil {
		nav = []doctree.Section{}
	}
	if err := c.PutNode(ctx, b.store.navKey(), pathstore.NodeRequest{Value: nav, Source: b.store.source}); err != nil {
		return fmt.Errorf("put navigation: %w", err)
	}
	return nil
}

func (b *pathstoreBatch) Rollback() error {
	b.done = true
	return nil
}
