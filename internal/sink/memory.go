package sink

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/slug"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	pages map[string]StoredPage
	nav   []doctree.Section
}

func NewMemory() *Memory {
	return &Memory{pages: make(map[string]StoredPage), nav: []doctree.Section{}}
}

func (m *Memory) Begin(context.Context) (Batch, error) {
	return &memoryBatch{store: m, pages: make(map[string]StoredPage)}, nil
}

func (m *Memory) Page(_ context.Context, s string) (StoredPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[s]
	if !ok {
		return StoredPage{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Pages(context.Context) ([]StoredPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredPage, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *Memory) Navigation(context.Context) ([]doctree.Section, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.nav), nil
}

func (m *Memory) Close() error { return nil }

type memoryBatch struct {
	store *Memory
	pages map[string]StoredPage
	nav   []doctree.Section
	done  bool
}

func (b *memoryBatch) Save(_ context.Context, title, body string) error {
	if !ShouldSave(title, body) {
		return nil
	}
	s := slug.Slugify(title)
	b.pages[s] = StoredPage{Slug: s, Title: title, Body: body}
	return nil
}

func (b *memoryBatch) SaveNavigation(_ context.Context, nav []doctree.Section) error {
	b.nav = slices.Clone(nav)
	return nil
}

func (b *memoryBatch) Commit(context.Context) error {
	if b.done {
		return errBatchDone
	}
	b.done = true
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.pages = b.pages
	if b.nav == nil {
		b.nav = []doctree.Section{}
	}
	b.store.nav = b.nav
	return nil
}

func (b *memoryBatch) Rollback() error {
	b.done = true
	return nil
}
