package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/pathstore"
)

var testNav = []doctree.Section{{
	Title: "Intro",
	Links: []doctree.Link{{Title: "Overview", Href: "/docs/overview"}},
}}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fsStore, err := NewFS(filepath.Join(dir, "site"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLite(filepath.Join(dir, "site.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	srv := httptest.NewServer(newFakePathstore())
	t.Cleanup(srv.Close)
	psStore := NewPathstore(pathstore.NewClient(srv.URL, "key"), "sites/test")

	return map[string]Store{
		"memory":    NewMemory(),
		"fs":        fsStore,
		"sqlite":    sqliteStore,
		"pathstore": psStore,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			nav, err := store.Navigation(ctx)
			require.NoError(t, err)
			assert.Empty(t, nav)
			assert.NotNil(t, nav)

			b, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, b.Save(ctx, "Overview", "# Intro\n\n## Overview\n\n"))
			require.NoError(t, b.Save(ctx, "**Quick** Start", "# Intro\n\n## Quick Start\n\n"))
			require.NoError(t, b.SaveNavigation(ctx, testNav))
			require.NoError(t, b.Commit(ctx))
			require.NoError(t, b.Rollback(), "rollback after commit is a no-op")

			p, err := store.Page(ctx, "overview")
			require.NoError(t, err)
			assert.Equal(t, "# Intro\n\n## Overview\n\n", p.Body)
			assert.Equal(t, "/docs/overview", p.URL())

			pages, err := store.Pages(ctx)
			require.NoError(t, err)
			var slugs []string
			for _, p := range pages {
				slugs = append(slugs, p.Slug)
			}
			assert.Equal(t, []string{"overview", "quick-start"}, slugs)

			nav, err = store.Navigation(ctx)
			require.NoError(t, err)
			assert.Equal(t, testNav, nav)

			_, err = store.Page(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.Page(ctx, "../etc")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_EmptyTitleOrBodyNotPersisted(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, b.Save(ctx, "Title", ""))
			require.NoError(t, b.Save(ctx, "", "body"))
			require.NoError(t, b.Commit(ctx))

			pages, err := store.Pages(ctx)
			require.NoError(t, err)
			assert.Empty(t, pages)
		})
	}
}

func TestStore_SlugCollisionLastWriterWins(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, b.Save(ctx, "Search", "products"))
			require.NoError(t, b.Save(ctx, "search", "customers"))
			require.NoError(t, b.Commit(ctx))

			p, err := store.Page(ctx, "search")
			require.NoError(t, err)
			assert.Equal(t, "customers", p.Body)
		})
	}
}

func TestStore_RollbackKeepsPreviousSite(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, b.Save(ctx, "Old", "old body"))
			require.NoError(t, b.SaveNavigation(ctx, testNav))
			require.NoError(t, b.Commit(ctx))

			b, err = store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, b.Save(ctx, "New", "new body"))
			require.NoError(t, b.Rollback())

			_, err = store.Page(ctx, "new")
			assert.ErrorIs(t, err, ErrNotFound)
			p, err := store.Page(ctx, "old")
			require.NoError(t, err)
			assert.Equal(t, "old body", p.Body)
		})
	}
}

func TestStore_CommitReplacesSite(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, title := range []string{"First", "Second"} {
				b, err := store.Begin(ctx)
				require.NoError(t, err)
				require.NoError(t, b.Save(ctx, title, title+" body"))
				require.NoError(t, b.Commit(ctx))
			}
			pages, err := store.Pages(ctx)
			require.NoError(t, err)
			require.Len(t, pages, 1)
			assert.Equal(t, "second", pages[0].Slug)
		})
	}
}

func TestFS_Layout(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "out")
	store, err := NewFS(root)
	require.NoError(t, err)

	b, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Save(ctx, "Cart Creation", "body"))
	require.NoError(t, b.SaveNavigation(ctx, testNav))
	require.NoError(t, b.Commit(ctx))

	assert.FileExists(t, filepath.Join(root, "docs", "cart-creation", "page.md"))
	assert.FileExists(t, filepath.Join(root, "navigation.json"))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(root), ".out-staging-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "staging directories are cleaned up")
}

// fakePathstore is a minimal in-memory pathstore API.
type fakePathstore struct {
	mu    sync.Mutex
	nodes map[string]json.RawMessage
}

func newFakePathstore() *fakePathstore {
	return &fakePathstore{nodes: make(map[string]json.RawMessage)}
}

func (f *fakePathstore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch {
	case r.Method == http.MethodPut:
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && strings.HasSuffix(key, "/*"):
		prefix := strings.TrimSuffix(key, "*")
		var out []map[string]any
		var keys []string
		for k := range f.nodes {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, map[string]any{"key_path": k, "value": f.nodes[k]})
		}
		json.NewEncoder(w).Encode(map[string]any{"nodes": out})
	case r.Method == http.MethodGet:
		v, ok := f.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"key_path": key, "value": v})
	case r.Method == http.MethodDelete:
		for k := range f.nodes {
			if k == key || (r.URL.Query().Get("children") == "true" && strings.HasPrefix(k, key+"/")) {
				delete(f.nodes, k)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
