package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/metrics"
	"github.com/dgallion1/notiondocs/internal/partition"
	"github.com/dgallion1/notiondocs/internal/search"
	"github.com/dgallion1/notiondocs/internal/sink"
	"github.com/dgallion1/notiondocs/internal/source"
)

// Worker runs site builds: fetch the content tree, partition it into pages,
// commit pages and navigation to the store and rebuild the search index.
type Worker struct {
	source   source.NodeSource
	store    sink.Store
	indexer  *search.Indexer
	recorder metrics.Recorder
	log      *slog.Logger

	delay func(err error, attempt int) time.Duration
}

func NewWorker(src source.NodeSource, store sink.Store, indexer *search.Indexer, recorder metrics.Recorder, log *slog.Logger) *Worker {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Worker{
		source:   src,
		store:    store,
		indexer:  indexer,
		recorder: recorder,
		log:      log,
		delay:    retryDelay,
	}
}

// Process runs the full build for a job. Nothing becomes visible to readers
// unless every page and the navigation were stored.
func (w *Worker) Process(ctx context.Context, job *Job) error {
	log := w.log.With("job_id", job.ID, "trigger", string(job.Trigger))
	start := time.Now()

	err := w.process(ctx, job, log)
	w.recorder.ObserveBuildDuration(time.Since(start))
	switch {
	case err == nil:
		w.recorder.IncBuildOutcome(metrics.OutcomeSuccess)
		job.SetStatus(StatusCompleted, "done")
		log.Info("build complete", "duration_ms", time.Since(start).Milliseconds())
	case errors.Is(err, context.Canceled):
		w.recorder.IncBuildOutcome(metrics.OutcomeCanceled)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "canceled")
		log.Warn("build canceled", "error", err)
	default:
		w.recorder.IncBuildOutcome(metrics.OutcomeFailed)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, job.Snapshot().Phase)
		log.Error("build failed", "error", err)
	}
	return err
}

func (w *Worker) process(ctx context.Context, job *Job, log *slog.Logger) error {
	// Phase 1: Fetch
	job.SetStatus(StatusFetching, "fetching")
	phaseStart := time.Now()
	nodes, err := w.fetch(ctx, log)
	w.recorder.ObservePhaseDuration("fetching", time.Since(phaseStart))
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	job.SetNodes(len(nodes))
	log.Info("fetched content tree", "nodes", len(nodes))

	// Phase 2: Partition, writing pages into the batch as they are flushed.
	job.SetStatus(StatusPartitioning, "partitioning")
	phaseStart = time.Now()
	batch, err := w.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := batch.Rollback(); rbErr != nil {
				log.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	result, err := partition.Run(ctx, nodes, batch)
	w.recorder.ObservePhaseDuration("partitioning", time.Since(phaseStart))
	if err != nil {
		return fmt.Errorf("partition: %w", err)
	}
	job.SetPartitioned(len(result.Pages), len(result.Navigation))
	log.Info("partitioned", "pages", len(result.Pages), "sections", len(result.Navigation))

	// Phase 3: Navigation and commit
	job.SetStatus(StatusStoring, "storing")
	phaseStart = time.Now()
	if err := batch.SaveNavigation(ctx, result.Navigation); err != nil {
		return fmt.Errorf("save navigation: %w", err)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	w.recorder.ObservePhaseDuration("storing", time.Since(phaseStart))

	// Phase 4: Index the committed site.
	job.SetStatus(StatusIndexing, "indexing")
	phaseStart = time.Now()
	stored, err := w.store.Pages(ctx)
	if err != nil {
		return fmt.Errorf("list stored pages: %w", err)
	}
	w.recorder.AddPagesWritten(len(stored))
	job.SetContentHash(siteHash(stored, result.Navigation))

	n, err := w.index(ctx, stored)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	job.SetIndexed(n)
	w.recorder.ObservePhaseDuration("indexing", time.Since(phaseStart))
	return nil
}

// Reindex rebuilds the search index from whatever the store currently holds,
// so a restarted process can serve search before its first build.
func (w *Worker) Reindex(ctx context.Context) (int, error) {
	stored, err := w.store.Pages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored pages: %w", err)
	}
	return w.index(ctx, stored)
}

func (w *Worker) index(ctx context.Context, stored []sink.StoredPage) (int, error) {
	if w.indexer == nil {
		return 0, nil
	}
	pages := make([]search.Page, 0, len(stored))
	for _, p := range stored {
		pages = append(pages, search.Page{URL: p.URL(), Markdown: p.Body})
	}
	return w.indexer.Rebuild(ctx, pages)
}

// fetch reads the content tree, retrying transient source failures.
func (w *Worker) fetch(ctx context.Context, log *slog.Logger) ([]*doctree.Node, error) {
	var nodes []*doctree.Node
	var lastErr error
	for attempt := range MaxRetries {
		nodes, lastErr = w.source.Nodes(ctx)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		if attempt == MaxRetries-1 {
			break
		}
		d := w.delay(lastErr, attempt)
		log.Warn("retryable fetch error", "attempt", attempt, "retry_in", d.String(), "error", lastErr)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nodes, lastErr
}

// siteHash digests the stored pages (in slug order) and the navigation.
func siteHash(pages []sink.StoredPage, nav []doctree.Section) string {
	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString(p.Slug)
		sb.WriteByte(0)
		sb.WriteString(p.Body)
		sb.WriteByte(0)
	}
	for _, s := range nav {
		sb.WriteString(s.Title)
		for _, l := range s.Links {
			sb.WriteByte(0)
			sb.WriteString(l.Title)
			sb.WriteByte(0)
			sb.WriteString(l.Href)
		}
		sb.WriteByte('\n')
	}
	return ContentHashHex([]byte(sb.String()))
}
