package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/slug"
)

const (
	pageFile       = "page.md"
	navigationFile = "navigation.json"
	docsDir        = "docs"
)

// FS stores the site as <root>/docs/<slug>/page.md plus <root>/navigation.json.
// Batches are written to a sibling staging directory and swapped in on commit.
type FS struct {
	mu   sync.RWMutex
	root string
}

func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute output directory.
func (f *FS) Root() string { return f.root }

func (f *FS) Begin(context.Context) (Batch, error) {
	parent := filepath.Dir(f.root)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create output parent: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(f.root)+"-staging-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &fsBatch{store: f, dir: staging}, nil
}

func (f *FS) Page(_ context.Context, s string) (StoredPage, error) {
	if !validSlug(s) {
		return StoredPage{}, ErrNotFound
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(f.root, docsDir, s, pageFile))
	if errors.Is(err, fs.ErrNotExist) {
		return StoredPage{}, ErrNotFound
	}
	if err != nil {
		return StoredPage{}, fmt.Errorf("read page %s: %w", s, err)
	}
	return StoredPage{Slug: s, Body: string(data)}, nil
}

func (f *FS) Pages(context.Context) ([]StoredPage, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	base := filepath.Join(f.root, docsDir)
	var pages []StoredPage
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || d.Name() != pageFile {
			return nil
		}
		rel, err := filepath.Rel(base, filepath.Dir(path))
		if err != nil {
			return err
		}
		s := filepath.ToSlash(rel)
		if s == "." {
			s = ""
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		pages = append(pages, StoredPage{Slug: s, Body: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk pages: %w", err)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Slug < pages[j].Slug })
	return pages, nil
}

func (f *FS) Navigation(context.Context) ([]doctree.Section, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(f.root, navigationFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []doctree.Section{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read navigation: %w", err)
	}
	nav := []doctree.Section{}
	if err := json.Unmarshal(data, &nav); err != nil {
		return nil, fmt.Errorf("decode navigation: %w", err)
	}
	return nav, nil
}

func (f *FS) Close() error { return nil }

// swap replaces the live root with dir.
func (f *FS) swap(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var old string
	if _, err := os.Stat(f.root); err == nil {
		old = dir + "-old"
		if err := os.Rename(f.root, old); err != nil {
			return fmt.Errorf("move previous site aside: %w", err)
		}
	}
	if err := os.Rename(dir, f.root); err != nil {
		if old != "" {
			_ = os.Rename(old, f.root)
		}
		return fmt.Errorf("publish site: %w", err)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("remove previous site: %w", err)
		}
	}
	return nil
}

type fsBatch struct {
	store *FS
	dir   string
	done  bool
}

func (b *fsBatch) Save(_ context.Context, title, body string) error {
	if !ShouldSave(title, body) {
		return nil
	}
	dir := filepath.Join(b.dir, docsDir, slug.Slugify(title))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create page dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, pageFile), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	return nil
}

func (b *fsBatch) SaveNavigation(_ context.Context, nav []doctree.Section) error {
	if nav == nil {
		nav = []doctree.Section{}
	}
	data, err := json.MarshalIndent(nav, "", "  ")
	if err != nil {
		return fmt.Errorf("encode navigation: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(b.dir, navigationFile), data, 0o644); err != nil {
		return fmt.Errorf("write navigation: %w", err)
	}
	return nil
}

func (b *fsBatch) Commit(context.Context) error {
	if b.done {
		return errBatchDone
	}
	b.done = true
	if err := b.store.swap(b.dir); err != nil {
		_ = os.RemoveAll(b.dir)
		return err
	}
	return nil
}

func (b *fsBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	return os.RemoveAll(b.dir)
}
