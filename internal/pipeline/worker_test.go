package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/notion"
	"github.com/dgallion1/notiondocs/internal/search"
	"github.com/dgallion1/notiondocs/internal/sink"
)

func heading(level int, s string) *doctree.Node {
	return &doctree.Node{Kind: doctree.KindHeading, Level: level, Spans: []doctree.Span{{Text: s}}}
}

func para(s string) *doctree.Node {
	return &doctree.Node{Kind: doctree.KindParagraph, Spans: []doctree.Span{{Text: s}}}
}

func siteNodes() []*doctree.Node {
	return []*doctree.Node{
		heading(1, "Intro"),
		heading(2, "Overview"),
		para("Hello world"),
		heading(2, "Setup"),
		para("Install the toolkit"),
	}
}

// scriptedSource returns errs in order, then nodes.
type scriptedSource struct {
	mu    sync.Mutex
	nodes []*doctree.Node
	errs  []error
	calls int
}

func (s *scriptedSource) Nodes(ctx context.Context) ([]*doctree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return s.nodes, nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingStore wraps a memory store whose batches fail to save one title.
type failingStore struct {
	*sink.Memory
	failTitle string
}

func (f *failingStore) Begin(ctx context.Context) (sink.Batch, error) {
	b, err := f.Memory.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingBatch{Batch: b, failTitle: f.failTitle}, nil
}

type failingBatch struct {
	sink.Batch
	failTitle string
}

func (b *failingBatch) Save(ctx context.Context, title, body string) error {
	if title == b.failTitle {
		return errors.New("disk full")
	}
	return b.Batch.Save(ctx, title, body)
}

func newTestWorker(src *scriptedSource, store sink.Store) (*Worker, *search.Indexer) {
	log := slog.New(slog.DiscardHandler)
	idx := search.NewIndexer(search.RankingIndex, search.DefaultLimit, log)
	w := NewWorker(src, store, idx, nil, log)
	w.delay = func(error, int) time.Duration { return 0 }
	return w, idx
}

func TestWorker_ProcessBuildsSite(t *testing.T) {
	store := sink.NewMemory()
	w, idx := newTestWorker(&scriptedSource{nodes: siteNodes()}, store)
	job := NewJob(TriggerAPI)

	if err := w.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Errorf("expected status %q, got %q", StatusCompleted, snap.Status)
	}
	if snap.Progress.Nodes != 5 {
		t.Errorf("expected 5 nodes, got %d", snap.Progress.Nodes)
	}
	if snap.Progress.Pages != 2 || snap.Progress.Sections != 1 {
		t.Errorf("expected 2 pages in 1 section, got %d in %d", snap.Progress.Pages, snap.Progress.Sections)
	}
	if snap.ContentHash == "" {
		t.Error("expected content hash to be set")
	}
	if snap.Progress.Indexed == 0 || idx.Size() != snap.Progress.Indexed {
		t.Errorf("expected indexed count %d to match index size %d", snap.Progress.Indexed, idx.Size())
	}

	page, err := store.Page(context.Background(), "setup")
	if err != nil {
		t.Fatalf("expected setup page: %v", err)
	}
	if !strings.Contains(page.Body, "Install the toolkit") {
		t.Errorf("unexpected page body %q", page.Body)
	}

	nav, _ := store.Navigation(context.Background())
	if len(nav) != 1 || nav[0].Title != "Intro" || len(nav[0].Links) != 2 {
		t.Errorf("unexpected navigation %+v", nav)
	}

	results, err := idx.Search(context.Background(), "toolkit", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 || !strings.HasPrefix(results[0].URL, "/docs/setup") {
		t.Errorf("expected a hit on the setup page, got %+v", results)
	}
}

func TestWorker_SameContentSameHash(t *testing.T) {
	w, _ := newTestWorker(&scriptedSource{nodes: siteNodes()}, sink.NewMemory())
	a, b := NewJob(TriggerAPI), NewJob(TriggerSchedule)
	if err := w.Process(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if err := w.Process(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if a.Snapshot().ContentHash != b.Snapshot().ContentHash {
		t.Error("expected identical builds to produce identical hashes")
	}
}

func TestWorker_SinkErrorKeepsPreviousSite(t *testing.T) {
	mem := sink.NewMemory()
	good, _ := newTestWorker(&scriptedSource{nodes: siteNodes()}, mem)
	if err := good.Process(context.Background(), NewJob(TriggerAPI)); err != nil {
		t.Fatal(err)
	}

	nodes := append(siteNodes(), heading(2, "Broken"), para("never stored"))
	bad, idx := newTestWorker(&scriptedSource{nodes: nodes}, &failingStore{Memory: mem, failTitle: "Broken"})
	job := NewJob(TriggerAPI)

	err := bad.Process(context.Background(), job)
	if err == nil {
		t.Fatal("expected error from failing sink")
	}
	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, snap.Status)
	}
	if snap.Phase != "partitioning" {
		t.Errorf("expected failure in partitioning, got %q", snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 || !strings.Contains(snap.Progress.Errors[0], "disk full") {
		t.Errorf("unexpected errors %v", snap.Progress.Errors)
	}

	pages, _ := mem.Pages(context.Background())
	if len(pages) != 2 {
		t.Errorf("expected previous 2 pages to survive, got %d", len(pages))
	}
	if idx.Size() != 0 {
		t.Errorf("expected failed build not to index, got %d documents", idx.Size())
	}
}

func TestWorker_RetriesTransientFetchErrors(t *testing.T) {
	src := &scriptedSource{
		nodes: siteNodes(),
		errs: []error{
			&notion.RetryableError{StatusCode: 429, Message: "slow down"},
			&notion.RetryableError{StatusCode: 502, Message: "bad gateway"},
		},
	}
	w, _ := newTestWorker(src, sink.NewMemory())
	job := NewJob(TriggerAPI)

	if err := w.Process(context.Background(), job); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if src.Calls() != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", src.Calls())
	}
}

func TestWorker_GivesUpAfterMaxRetries(t *testing.T) {
	errs := make([]error, MaxRetries+1)
	for i := range errs {
		errs[i] = &notion.RetryableError{StatusCode: 503, Message: "unavailable"}
	}
	src := &scriptedSource{nodes: siteNodes(), errs: errs}
	w, _ := newTestWorker(src, sink.NewMemory())

	if err := w.Process(context.Background(), NewJob(TriggerAPI)); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if src.Calls() != MaxRetries {
		t.Errorf("expected %d fetch attempts, got %d", MaxRetries, src.Calls())
	}
}

func TestWorker_PermanentFetchErrorFailsFast(t *testing.T) {
	src := &scriptedSource{errs: []error{&notion.APIError{StatusCode: 401, Code: "unauthorized", Message: "bad token"}}}
	w, _ := newTestWorker(src, sink.NewMemory())
	job := NewJob(TriggerAPI)

	err := w.Process(context.Background(), job)
	var apiErr *notion.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if src.Calls() != 1 {
		t.Errorf("expected 1 fetch attempt, got %d", src.Calls())
	}
	if job.Snapshot().Phase != "fetching" {
		t.Errorf("expected failure in fetching, got %q", job.Snapshot().Phase)
	}
}

func TestWorker_Canceled(t *testing.T) {
	w, _ := newTestWorker(&scriptedSource{nodes: siteNodes()}, sink.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := NewJob(TriggerAPI)

	err := w.Process(ctx, job)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "canceled" {
		t.Errorf("expected failed/canceled, got %q/%q", snap.Status, snap.Phase)
	}
}

func TestWorker_ReindexFromStore(t *testing.T) {
	store := sink.NewMemory()
	first, _ := newTestWorker(&scriptedSource{nodes: siteNodes()}, store)
	if err := first.Process(context.Background(), NewJob(TriggerAPI)); err != nil {
		t.Fatal(err)
	}

	// A fresh worker over the same store, as after a restart.
	restarted, idx := newTestWorker(&scriptedSource{}, store)
	n, err := restarted.Reindex(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 || idx.Size() != n {
		t.Errorf("expected %d indexed sections, index has %d", n, idx.Size())
	}
	results, _ := idx.Search(context.Background(), "hello", 0)
	if len(results) == 0 {
		t.Error("expected reindexed content to be searchable")
	}
}

func TestWorker_PageTitleIndependentOfStore(t *testing.T) {
	nodes := []*doctree.Node{
		heading(1, "Intro"),
		{Kind: doctree.KindHeading, Level: 2, Spans: []doctree.Span{
			{Text: "Quick", Annotations: doctree.Italic},
			{Text: " Start"},
		}},
		para("Install the toolkit"),
	}
	fsStore, err := sink.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stores := map[string]sink.Store{"memory": sink.NewMemory(), "fs": fsStore}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			w, idx := newTestWorker(&scriptedSource{nodes: nodes}, store)
			if err := w.Process(context.Background(), NewJob(TriggerAPI)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			results, err := idx.Search(context.Background(), "toolkit", 0)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(results) == 0 {
				t.Fatal("expected a hit")
			}
			if results[0].PageTitle != "Quick Start" {
				t.Errorf("expected page title %q, got %q", "Quick Start", results[0].PageTitle)
			}
		})
	}
}
